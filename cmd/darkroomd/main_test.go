package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"darkroom/internal/testsupport"
)

func TestBootstrapStartsDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := rt.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := rt.daemon.Status(ctx)
	if !status.Running || status.Library.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !strings.HasPrefix(filepath.Base(rt.log.Path), "darkroomd-") {
		t.Fatalf("unexpected run log name %q", rt.log.Path)
	}
	data, err := os.ReadFile(rt.log.Path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(data), "darkroom daemon started") {
		t.Fatalf("run log missing start event: %s", data)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Daemon.APIBind = ""
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
}
