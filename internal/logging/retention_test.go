package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"darkroom/internal/config"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatal(err)
	}
}

func TestCleanupOldLogsHonoursPatternAndExclusions(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "darkroomd-old.jsonl")
	current := filepath.Join(dir, "darkroomd-current.jsonl")
	recent := filepath.Join(dir, "darkroomd-recent.jsonl")
	other := filepath.Join(dir, "notes.txt")
	touch(t, old, 40*24*time.Hour)
	touch(t, current, 40*24*time.Hour)
	touch(t, recent, time.Hour)
	touch(t, other, 40*24*time.Hour)

	removed := CleanupOldLogs(NewNop(), 30, RetentionTarget{Dir: dir, Pattern: daemonLogPattern, Exclude: []string{current}})
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old log should be pruned, stat err = %v", err)
	}
	for _, keep := range []string{current, recent, other} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("%s should survive: %v", filepath.Base(keep), err)
		}
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "darkroomd-old.jsonl")
	touch(t, old, 400*24*time.Hour)
	if removed := CleanupOldLogs(nil, 0, RetentionTarget{Dir: dir}); removed != 0 {
		t.Fatalf("removed = %d with retention disabled", removed)
	}
	if _, err := os.Stat(old); err != nil {
		t.Fatal(err)
	}
}

func TestOpenDaemonLogTeesJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.RetentionDays = 1
	stale := filepath.Join(cfg.Paths.LogDir, "darkroomd-stale.jsonl")
	touch(t, stale, 72*time.Hour)

	var console bytes.Buffer
	dl, err := OpenDaemonLog(&cfg, slog.New(slog.NewTextHandler(&console, nil)))
	if err != nil {
		t.Fatalf("OpenDaemonLog: %v", err)
	}
	dl.Logger.Info("hello", String(FieldAssetID, "a1"))
	if err := dl.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale run log should be pruned, stat err = %v", err)
	}
	f, err := os.Open(dl.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	found := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q", scanner.Text())
		}
		if entry["msg"] == "hello" && entry[FieldAssetID] == "a1" {
			found = true
		}
	}
	if !found {
		t.Fatal("message missing from daemon log")
	}
	if !strings.Contains(console.String(), "hello") {
		t.Fatal("console logger did not receive the message")
	}
}
