package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"darkroom/internal/config"
	"darkroom/internal/dropzone"
	"darkroom/internal/logging"
	"darkroom/internal/pipeline"
)

// Daemon coordinates the dropzone poller and the API server and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	svc    *pipeline.Service
	poller *dropzone.Poller
	api    *apiServer
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	LockFilePath string                 `json:"lock_file_path"`
	APIAddress   string                 `json:"api_address,omitempty"`
	Dropzone     dropzone.Snapshot      `json:"dropzone"`
	Library      pipeline.LibraryStatus `json:"library"`
	LibraryError string                 `json:"library_error,omitempty"`
}

// New constructs a daemon over svc. The daemon takes ownership of svc and
// closes it in Close.
func New(cfg *config.Config, svc *pipeline.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || svc == nil {
		return nil, errors.New("daemon requires config and pipeline service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		svc:      svc,
		poller:   dropzone.New(cfg, svc, logger),
		logger:   logger,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, schedules dropzone scans, and starts the
// API listener when one is configured.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another darkroom daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.poller.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start dropzone: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.poller.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("darkroom daemon started",
		logging.String("lock", d.lockPath),
		logging.String("dropzone", d.cfg.Paths.DropzoneDir),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop halts scans and the API server and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.poller.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String("lock", d.lockPath),
			logging.String(logging.FieldImpact, "next daemon start may report a stale lock"),
		)
	}
	d.running.Store(false)
	d.logger.Info("darkroom daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the pipeline service.
func (d *Daemon) Close() error {
	d.Stop()
	if d.svc != nil {
		return d.svc.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not yet run.
func (d *Daemon) Running() bool { return d.running.Load() }

// Service exposes the pipeline the daemon serves.
func (d *Daemon) Service() *pipeline.Service { return d.svc }

// ScanNow runs one dropzone scan outside the schedule.
func (d *Daemon) ScanNow(ctx context.Context) ([]pipeline.ItemResult, error) {
	return d.poller.Scan(ctx)
}

// Status reports the daemon and library state. A catalog read failure is
// reported in LibraryError rather than failing the whole status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
		Dropzone:     d.poller.Snapshot(),
	}
	lib, err := d.svc.Status(ctx)
	if err != nil {
		st.LibraryError = err.Error()
	} else {
		st.Library = lib
	}
	return st
}
