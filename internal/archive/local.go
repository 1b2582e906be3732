package archive

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"darkroom/internal/fileutil"
	"darkroom/internal/logging"
	"darkroom/internal/services"
)

// Local archives into a directory tree.
type Local struct {
	root   string
	logger *slog.Logger
}

// NewLocal archives below root.
func NewLocal(root string, logger *slog.Logger) *Local {
	return &Local{root: root, logger: logging.NewComponentLogger(logger, "archive")}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Put(ctx context.Context, key, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	if l.root == "" {
		return "", services.Wrap(services.ErrConfiguration, "archive", "put", "archive_dir is not configured", nil)
	}
	dst := filepath.Join(l.root, filepath.FromSlash(key))
	if _, err := fileutil.CopyFileVerified(src, dst); err != nil {
		return "", services.Wrap(services.ErrTransient, "archive", "copy", "Unable to copy file into archive", err)
	}
	l.logger.Debug("archived file", logging.String("source", src), logging.String("destination", dst))
	return dst, nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
