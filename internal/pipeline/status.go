package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"darkroom/internal/config"
	"darkroom/internal/services"
	"darkroom/internal/store"
)

// LibraryStatus summarizes the catalog and the quarantine directory.
type LibraryStatus struct {
	Assets          int                `json:"assets"`
	Rejected        int                `json:"rejected"`
	Active          map[store.Tier]int `json:"active"`
	HistoryEntries  int                `json:"history_entries"`
	QuarantineFiles int                `json:"quarantine_files"`
	QuarantineBytes int64              `json:"quarantine_bytes"`
	DatabasePath    string             `json:"database_path"`
	LibraryDir      string             `json:"library_dir"`
	Providers       []string           `json:"providers"`
	PromptVersion   string             `json:"prompt_version,omitempty"`
	ArchiveBackend  string             `json:"archive_backend"`
	FacesEnabled    bool               `json:"faces_enabled"`
}

// enrichmentPolicy is implemented by the enrichment orchestrator.
type enrichmentPolicy interface {
	Providers() []string
	PromptVersion() string
}

// Status reports catalog counts and quarantine usage.
func (s *Service) Status(ctx context.Context) (LibraryStatus, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return LibraryStatus{}, services.Wrap(services.ErrTransient, "pipeline", "status", "Unable to read catalog", err)
	}
	st := LibraryStatus{
		Assets:         stats.Assets,
		Rejected:       stats.Rejected,
		Active:         stats.Active,
		HistoryEntries: stats.History,
		DatabasePath:   s.store.Path(),
		LibraryDir:     s.cfg.Paths.LibraryDir,
		ArchiveBackend: s.cfg.Archive.Backend,
		FacesEnabled:   s.detector != nil,
	}
	if policy, ok := s.enricher.(enrichmentPolicy); ok {
		st.Providers = policy.Providers()
		st.PromptVersion = policy.PromptVersion()
	} else {
		for _, name := range []string{s.cfg.Enrichment.Primary, s.cfg.Enrichment.Fallback} {
			if name != "" && name != config.ProviderNone {
				st.Providers = append(st.Providers, name)
			}
		}
	}
	st.QuarantineFiles, st.QuarantineBytes = dirUsage(s.cfg.Paths.QuarantineDir)
	return st, nil
}

func dirUsage(root string) (int, int64) {
	var (
		files int
		bytes int64
	)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			bytes += info.Size()
		}
		return nil
	})
	return files, bytes
}
