package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory and file pattern to prune. Exclude lists
// files that must survive regardless of age, such as the current run's log.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files matched by targets whose modification time is
// older than retentionDays and returns how many were removed. Zero or
// negative retention disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		removed += pruneTarget(logger, target, cutoff)
	}
	return removed
}

func pruneTarget(logger *slog.Logger, target RetentionTarget, cutoff time.Time) int {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	keep := make(map[string]bool, len(target.Exclude))
	for _, path := range target.Exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
			keep[abs] = true
		}
	}
	pattern := strings.TrimSpace(target.Pattern)

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path := filepath.Join(dir, entry.Name())
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if keep[path] {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Info("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}
