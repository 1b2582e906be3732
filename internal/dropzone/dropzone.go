// Package dropzone polls the dropzone directory on a cron schedule and feeds
// new files into ingestion.
package dropzone

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/notifications"
	"darkroom/internal/pipeline"
	"darkroom/internal/services"
	"darkroom/internal/tier"
)

// defaultSettle is how long a file must sit unmodified before it is picked up,
// so half-copied files are left for the next scan.
const defaultSettle = 2 * time.Second

// Ingester is the part of pipeline.Service the poller drives.
type Ingester interface {
	IngestBatch(ctx context.Context, paths []string, opts tier.IngestOptions) []pipeline.ItemResult
}

// Snapshot describes the poller for status reporting.
type Snapshot struct {
	Running     bool      `json:"running"`
	Dir         string    `json:"dir"`
	Interval    string    `json:"interval"`
	LastScan    time.Time `json:"last_scan,omitempty"`
	LastFound   int       `json:"last_found"`
	TotalScans  int       `json:"total_scans"`
	Ingested    int       `json:"ingested"`
	Duplicates  int       `json:"duplicates"`
	Quarantined int       `json:"quarantined"`
	Failed      int       `json:"failed"`
}

// Poller scans the dropzone directory periodically.
type Poller struct {
	dir        string
	extensions []string
	interval   time.Duration
	settle     time.Duration
	opts       tier.IngestOptions
	ingester   Ingester
	notifier   notifications.Service
	logger     *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	stats  Snapshot
}

// New builds a poller from the [paths] and [ingest] sections.
func New(cfg *config.Config, ingester Ingester, logger *slog.Logger) *Poller {
	interval := time.Duration(cfg.Ingest.PollInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	exts := make([]string, 0, len(cfg.Ingest.Extensions))
	for _, ext := range cfg.Ingest.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, config.DefaultExtensions...)
	}
	return &Poller{
		dir:        cfg.Paths.DropzoneDir,
		extensions: exts,
		interval:   interval,
		settle:     defaultSettle,
		opts:       tier.IngestOptions{RemoveSource: cfg.Ingest.RemoveSource},
		ingester:   ingester,
		notifier:   notifications.NewService(cfg),
		logger:     logging.NewComponentLogger(logger, "dropzone"),
	}
}

// Start schedules scans every poll interval. A scan still running when the
// next tick fires makes that tick a no-op.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}
	if strings.TrimSpace(p.dir) == "" {
		return fmt.Errorf("dropzone directory not configured")
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create dropzone: %w", err)
	}

	cronLogger := cronLogAdapter{logger: p.logger}
	c := cron.New(cron.WithChain(
		recoverWrapper(p.logger),
		cron.SkipIfStillRunning(cronLogger),
	), cron.WithLogger(cronLogger))
	spec := "@every " + p.interval.String()
	if _, err := c.AddJob(spec, p); err != nil {
		return fmt.Errorf("schedule dropzone scan: %w", err)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron = c
	p.stats.Running = true
	c.Start()
	p.logger.Info("dropzone polling started",
		logging.String("dir", p.dir),
		logging.String("schedule", spec),
	)
	return nil
}

// Stop cancels pending work and waits for a running scan to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	c, cancel := p.cron, p.cancel
	p.cron, p.cancel = nil, nil
	p.stats.Running = false
	p.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	p.logger.Info("dropzone polling stopped")
}

// Run implements cron.Job.
func (p *Poller) Run() {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx == nil {
		return
	}
	if _, err := p.Scan(ctx); err != nil {
		logging.WarnWithContext(p.logger, "dropzone scan failed", "dropzone_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new files wait for the next scan"),
		)
		p.notify(ctx, func(n notifications.Service) error { return n.NotifyError(ctx, err, "dropzone scan") })
	}
}

// Name labels the job in logs.
func (p *Poller) Name() string { return "dropzone_scan" }

// Scan ingests every eligible file currently in the dropzone.
func (p *Poller) Scan(ctx context.Context) ([]pipeline.ItemResult, error) {
	paths, err := p.candidates()
	if err != nil {
		return nil, err
	}
	p.record(func(s *Snapshot) {
		s.LastScan = time.Now().UTC()
		s.LastFound = len(paths)
		s.TotalScans++
	})
	if len(paths) == 0 {
		return nil, nil
	}

	logger := p.logger.With(logging.String(logging.FieldCorrelationID, uuid.NewString()))
	logger.Info("dropzone files found", logging.Int("files", len(paths)))
	started := time.Now()
	results := p.ingester.IngestBatch(ctx, paths, p.opts)
	summary := notifications.ScanSummary{Duration: time.Since(started)}
	for _, r := range results {
		switch r.Status {
		case pipeline.StatusSuccess:
			summary.Ingested++
		case pipeline.StatusDuplicate:
			summary.Duplicates++
		case pipeline.StatusQuarantined:
			summary.Quarantined++
		default:
			summary.Failed++
		}
	}
	p.record(func(s *Snapshot) {
		s.Ingested += summary.Ingested
		s.Duplicates += summary.Duplicates
		s.Quarantined += summary.Quarantined
		s.Failed += summary.Failed
	})
	for _, r := range results {
		if r.Status != pipeline.StatusError {
			continue
		}
		logging.WarnWithContext(logger, "dropzone file not ingested", "dropzone_ingest_failed",
			logging.String("path", r.Input),
			logging.String("error_kind", string(r.Kind)),
			logging.String("error", r.Error),
			logging.String(logging.FieldImpact, "file stays in the dropzone and is retried on the next scan"),
		)
		if r.Kind == services.KindIntegrity {
			p.notify(ctx, func(n notifications.Service) error { return n.NotifyIntegrityError(ctx, r.Input, r.Error) })
		}
	}
	p.notify(ctx, func(n notifications.Service) error { return n.NotifyScanCompleted(ctx, summary) })
	return results, nil
}

// notify delivers a notification and logs, rather than returns, failures.
func (p *Poller) notify(ctx context.Context, send func(notifications.Service) error) {
	if err := send(p.notifier); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(p.logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "scan results are only in the log"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

// Snapshot returns the poller's counters.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Dir = p.dir
	s.Interval = p.interval.String()
	return s
}

func (p *Poller) record(fn func(*Snapshot)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

// candidates lists settled files with an accepted extension. Hidden files
// and directories are skipped, as are partial downloads.
func (p *Poller) candidates() ([]string, error) {
	cutoff := time.Now().Add(-p.settle)
	var out []string
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.dir {
				return err
			}
			return nil
		}
		name := d.Name()
		if path != p.dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !slices.Contains(p.extensions, strings.ToLower(filepath.Ext(name))) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan dropzone: %w", err)
	}
	return out, nil
}

func recoverWrapper(logger *slog.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			defer func() {
				if r := recover(); r != nil {
					logging.ErrorWithContext(logger, "dropzone scan panicked", "dropzone_panic",
						logging.Any("panic", r),
						logging.String("stack_trace", string(debug.Stack())),
						logging.String(logging.FieldImpact, "scan aborted; polling continues"),
					)
				}
			}()
			j.Run()
		})
	}
}

// cronLogAdapter routes robfig/cron's logger through slog.
type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error("cron: "+msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
