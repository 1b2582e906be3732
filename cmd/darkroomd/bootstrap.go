package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"darkroom/internal/config"
	"darkroom/internal/daemon"
	"darkroom/internal/logging"
	"darkroom/internal/pipeline"
)

// runtime bundles what the daemon process owns between start and exit.
type runtime struct {
	daemon *daemon.Daemon
	log    *logging.DaemonLog
	logger *slog.Logger
}

// bootstrap prepares directories, logging, and the pipeline, and returns a
// daemon that has not been started yet.
func bootstrap(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	console, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	dlog, err := logging.OpenDaemonLog(cfg, console)
	if err != nil {
		return nil, err
	}
	logger := dlog.Logger

	svc, err := pipeline.Open(ctx, cfg, logger)
	if err != nil {
		_ = dlog.Close()
		return nil, fmt.Errorf("open pipeline: %w", err)
	}
	d, err := daemon.New(cfg, svc, logger)
	if err != nil {
		_ = svc.Close()
		_ = dlog.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return &runtime{daemon: d, log: dlog, logger: logger}, nil
}

// Close stops the daemon and releases the pipeline and the run log.
func (r *runtime) Close() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.daemon.Close(), r.log.Close())
}
