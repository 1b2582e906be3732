package dropzone

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/pipeline"
	"darkroom/internal/services"
	"darkroom/internal/testsupport"
	"darkroom/internal/tier"
)

type recordingIngester struct {
	mu    sync.Mutex
	calls [][]string
	opts  []tier.IngestOptions
	seen  chan struct{}
}

func (r *recordingIngester) IngestBatch(_ context.Context, paths []string, opts tier.IngestOptions) []pipeline.ItemResult {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), paths...))
	r.opts = append(r.opts, opts)
	r.mu.Unlock()
	if r.seen != nil {
		select {
		case r.seen <- struct{}{}:
		default:
		}
	}
	out := make([]pipeline.ItemResult, len(paths))
	for i, p := range paths {
		out[i] = pipeline.ItemResult{Input: p, Status: pipeline.StatusSuccess}
		if filepath.Base(p) == "dup.jpg" {
			out[i].Status = pipeline.StatusDuplicate
		}
	}
	return out
}

func newPoller(t *testing.T, ing Ingester) (*Poller, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Ingest.PollInterval = 1
	p := New(cfg, ing, logging.NewNop())
	p.settle = 0
	return p, cfg
}

func TestScanPicksEligibleFiles(t *testing.T) {
	ing := &recordingIngester{}
	p, cfg := newPoller(t, ing)
	dz := cfg.Paths.DropzoneDir
	for _, name := range []string{"a.jpg", "b.JPEG", "nested/c.png", "dup.jpg"} {
		testsupport.WriteFile(t, filepath.Join(dz, name), 16)
	}
	for _, name := range []string{"notes.txt", ".hidden.jpg", ".cache/d.jpg", "e.jpg.part"} {
		testsupport.WriteFile(t, filepath.Join(dz, name), 16)
	}

	results, err := p.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(ing.calls) != 1 {
		t.Fatalf("IngestBatch calls = %d", len(ing.calls))
	}
	got := append([]string(nil), ing.calls[0]...)
	sort.Strings(got)
	want := []string{
		filepath.Join(dz, "a.jpg"),
		filepath.Join(dz, "b.JPEG"),
		filepath.Join(dz, "dup.jpg"),
		filepath.Join(dz, "nested", "c.png"),
	}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paths = %v, want %v", got, want)
		}
	}
	if !ing.opts[0].RemoveSource {
		t.Fatal("dropzone ingestion should remove sources by default")
	}
	if len(results) != 4 {
		t.Fatalf("results = %d", len(results))
	}

	snap := p.Snapshot()
	if snap.TotalScans != 1 || snap.LastFound != 4 || snap.Ingested != 3 || snap.Duplicates != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestScanSkipsUnsettledFiles(t *testing.T) {
	ing := &recordingIngester{}
	p, cfg := newPoller(t, ing)
	p.settle = time.Hour
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DropzoneDir, "fresh.jpg"), 16)

	if _, err := p.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ing.calls) != 0 {
		t.Fatalf("fresh file should wait, got calls %v", ing.calls)
	}
}

func TestScanMissingDropzone(t *testing.T) {
	p, cfg := newPoller(t, &recordingIngester{})
	if err := os.RemoveAll(cfg.Paths.DropzoneDir); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Scan(context.Background()); err == nil {
		t.Fatal("expected error for missing dropzone")
	}
}

func TestStartSchedulesScans(t *testing.T) {
	ing := &recordingIngester{seen: make(chan struct{}, 1)}
	p, cfg := newPoller(t, ing)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DropzoneDir, "a.jpg"), 16)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	if !p.Snapshot().Running {
		t.Fatal("snapshot should report running")
	}

	select {
	case <-ing.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled scan did not run")
	}
	p.Stop()
	if p.Snapshot().Running {
		t.Fatal("snapshot should report stopped")
	}
}

type collidingIngester struct{}

func (collidingIngester) IngestBatch(_ context.Context, paths []string, _ tier.IngestOptions) []pipeline.ItemResult {
	out := make([]pipeline.ItemResult, len(paths))
	for i, p := range paths {
		out[i] = pipeline.ItemResult{Input: p, Status: pipeline.StatusError, Kind: services.KindIntegrity, Error: "hash collision"}
	}
	return out
}

func TestScanNotifiesSummaryAndIntegrityErrors(t *testing.T) {
	var mu sync.Mutex
	var titles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		titles = append(titles, r.Header.Get("Title"))
		mu.Unlock()
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = srv.URL
	p := New(cfg, collidingIngester{}, logging.NewNop())
	p.settle = 0
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DropzoneDir, "clash.jpg"), 16)

	if _, err := p.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []string{"Darkroom - Integrity Error", "Darkroom - Dropzone Scan (with errors)"}
	if len(titles) != len(want) {
		t.Fatalf("notifications = %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("notifications = %v, want %v", titles, want)
		}
	}
	if snap := p.Snapshot(); snap.Failed != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
