package tier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/fileutil"
	"darkroom/internal/store"
	"darkroom/internal/textutil"
)

// Quarantine reasons double as subdirectory names.
const (
	QuarantineCorrupt    = "corrupt"
	QuarantineDuplicates = "duplicates"
)

// Layout maps tiers to directories and naming patterns.
//
// Patterns accept {year}, {month}, {day} (capture date, falling back to the
// ingest date), {asset} (short asset id), {hash} (short content hash), {name}
// (sanitized original stem) and {ext} (lowercase extension with its dot).
type Layout struct {
	BronzeDir     string
	SilverDir     string
	GoldDir       string
	QuarantineDir string
	BronzePattern string
	SilverPattern string
	GoldPattern   string
}

// LayoutFromConfig reads the tier directories and patterns from cfg.
func LayoutFromConfig(cfg *config.Config) Layout {
	return Layout{
		BronzeDir:     cfg.Paths.BronzeDir,
		SilverDir:     cfg.Paths.SilverDir,
		GoldDir:       cfg.Paths.GoldDir,
		QuarantineDir: cfg.Paths.QuarantineDir,
		BronzePattern: cfg.Tiers.BronzePattern,
		SilverPattern: cfg.Tiers.SilverPattern,
		GoldPattern:   cfg.Tiers.GoldPattern,
	}
}

// naming carries the values substituted into a pattern.
type naming struct {
	assetID     string
	contentHash string
	filename    string
	capturedAt  time.Time
}

func (l Layout) root(tier store.Tier) string {
	switch tier {
	case store.TierBronze:
		return l.BronzeDir
	case store.TierSilver:
		return l.SilverDir
	case store.TierGold:
		return l.GoldDir
	}
	return ""
}

func (l Layout) pattern(tier store.Tier) string {
	var p string
	switch tier {
	case store.TierBronze:
		p = l.BronzePattern
	case store.TierSilver:
		p = l.SilverPattern
	case store.TierGold:
		p = l.GoldPattern
	}
	if strings.TrimSpace(p) == "" {
		p = "{year}/{month}/{name}_{asset}{ext}"
	}
	return p
}

// target reserves a free path for a new file at tier.
func (l Layout) target(tier store.Tier, n naming) (string, error) {
	root := l.root(tier)
	if root == "" {
		return "", fmt.Errorf("no directory configured for tier %s", tier)
	}
	rel := render(l.pattern(tier), n)
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create tier directory: %w", err)
	}
	return fileutil.ReservePath(path)
}

// quarantinePath reserves a free path for filename under the reason directory.
func (l Layout) quarantinePath(reason, filename string) (string, error) {
	if l.QuarantineDir == "" {
		return "", fmt.Errorf("quarantine directory not configured")
	}
	dir := filepath.Join(l.QuarantineDir, reason)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create quarantine directory: %w", err)
	}
	name := textutil.SanitizeFileName(filepath.Base(filename))
	if name == "" || name == "." {
		name = "unnamed"
	}
	return fileutil.ReservePath(filepath.Join(dir, name))
}

func render(pattern string, n naming) string {
	when := n.capturedAt
	if when.IsZero() {
		when = time.Now()
	}
	ext := strings.ToLower(filepath.Ext(n.filename))
	replacer := strings.NewReplacer(
		"{year}", when.Format("2006"),
		"{month}", when.Format("01"),
		"{day}", when.Format("02"),
		"{asset}", short(n.assetID, 8),
		"{hash}", short(n.contentHash, 16),
		"{name}", textutil.Stem(n.filename),
		"{ext}", ext,
	)
	rel := filepath.Clean(filepath.FromSlash(replacer.Replace(pattern)))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(rel)
	}
	if filepath.Ext(rel) == "" {
		rel += ext
	}
	return rel
}

func short(value string, n int) string {
	value = strings.ReplaceAll(value, "-", "")
	if len(value) > n {
		return value[:n]
	}
	if value == "" {
		return "unknown"
	}
	return value
}
