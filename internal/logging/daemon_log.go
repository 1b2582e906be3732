package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"darkroom/internal/config"
)

// daemonLogPattern matches the per-run daemon log files.
const daemonLogPattern = "darkroomd-*.jsonl"

// DaemonLog is the per-run JSON log of a daemon process, teed with the
// console logger it was opened from.
type DaemonLog struct {
	Logger *slog.Logger
	Path   string
	file   *os.File
}

// OpenDaemonLog creates a timestamped JSON log file under the log directory,
// duplicates console output into it, and prunes run logs older than the
// configured retention.
func OpenDaemonLog(cfg *config.Config, console *slog.Logger) (*DaemonLog, error) {
	dir := cfg.Paths.LogDir
	if dir == "" {
		return &DaemonLog{Logger: console}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	name := "darkroomd-" + time.Now().UTC().Format("20060102T150405.000Z") + ".jsonl"
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Logging.Level))
	logger := TeeLogger(console, newJSONLineHandler(file, level, false))

	pruned := CleanupOldLogs(logger, cfg.Logging.RetentionDays, RetentionTarget{
		Dir:     dir,
		Pattern: daemonLogPattern,
		Exclude: []string{path},
	})
	logger.Debug("daemon log opened", String("path", path), Int("pruned", pruned))
	return &DaemonLog{Logger: logger, Path: path, file: file}, nil
}

// Close flushes and closes the log file.
func (d *DaemonLog) Close() error {
	if d == nil || d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
