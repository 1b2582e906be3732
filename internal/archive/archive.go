package archive

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"darkroom/internal/config"
	"darkroom/internal/services"
)

// Storage is an archive backend.
type Storage interface {
	// Name identifies the backend in history details and logs.
	Name() string
	// Put copies the local file at src under key and returns its location.
	Put(ctx context.Context, key, src string) (string, error)
	// Exists reports whether key is already archived.
	Exists(ctx context.Context, key string) (bool, error)
}

// New builds the backend selected by cfg.Archive.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Archive.Backend)) {
	case "", config.ArchiveBackendLocal:
		return NewLocal(cfg.Paths.ArchiveDir, logger), nil
	case config.ArchiveBackendS3:
		return NewS3(ctx, cfg.Archive.S3, logger)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "archive", "select backend",
			fmt.Sprintf("unknown archive backend %q", cfg.Archive.Backend), nil)
	}
}

// KeyFor derives the archive key of a Gold file from its path below root.
// Files outside root fall back to their base name.
func KeyFor(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(file)
	}
	return path.Clean(filepath.ToSlash(rel))
}

func validKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.HasPrefix(key, "../") || key == ".." {
		return services.Validation("archive", "key", fmt.Sprintf("invalid archive key %q", key))
	}
	return nil
}
