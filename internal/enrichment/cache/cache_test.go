package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"darkroom/internal/config"
)

func TestFileStoreAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()
	key := Key{ContentHash: "abc", Provider: "local", Model: "llava", PromptVersion: "v3"}

	c := NewFile(path, 0, nil)
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := c.Put(ctx, key, Entry{Provider: "local", Model: "llava", Result: json.RawMessage(`{"tags":["dog"]}`)}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reloaded := NewFile(path, 0, nil)
	entry, ok, err := reloaded.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit after reload, ok=%v err=%v", ok, err)
	}
	if string(entry.Result) != `{"tags":["dog"]}` {
		t.Fatalf("unexpected result: %s", entry.Result)
	}
}

func TestFilePromptVersionMisses(t *testing.T) {
	ctx := context.Background()
	c := NewFile(filepath.Join(t.TempDir(), "cache.json"), 0, nil)
	key := Key{ContentHash: "abc", Provider: "local", Model: "llava", PromptVersion: "v3"}
	if err := c.Put(ctx, key, Entry{Result: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	bumped := key
	bumped.PromptVersion = "v4"
	if _, ok, _ := c.Get(ctx, bumped); ok {
		t.Fatal("prompt version bump should miss")
	}
}

func TestFileExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewFile(filepath.Join(t.TempDir(), "cache.json"), time.Hour, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	key := Key{ContentHash: "abc", Provider: "local"}
	if err := c.Put(ctx, key, Entry{Result: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestFileCorruptStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewFile(path, 0, nil)
	if c.Count() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Count())
	}
}

func TestPutRejectsIncompleteKey(t *testing.T) {
	c := NewFile(filepath.Join(t.TempDir(), "cache.json"), 0, nil)
	if err := c.Put(context.Background(), Key{Provider: "local"}, Entry{}); err == nil {
		t.Fatal("expected error for missing content hash")
	}
}

func TestFromConfig(t *testing.T) {
	store, err := FromConfig(config.EnrichmentCache{Backend: config.CacheBackendNone}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(Nop); !ok {
		t.Fatalf("expected Nop, got %T", store)
	}
	store, err = FromConfig(config.EnrichmentCache{Backend: config.CacheBackendRedis, RedisURL: "redis://localhost:6379/2", TTLHours: 1}, nil)
	if err != nil {
		t.Fatalf("redis backend: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*Redis); !ok {
		t.Fatalf("expected *Redis, got %T", store)
	}
	if _, err := FromConfig(config.EnrichmentCache{Backend: config.CacheBackendRedis, RedisURL: "::bad"}, nil); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestKeyString(t *testing.T) {
	key := Key{ContentHash: " abc ", Provider: "openai", Model: "gpt-4o", PromptVersion: "v3"}
	if got := key.String(); got != "abc:openai:gpt-4o:v3" {
		t.Fatalf("unexpected key %q", got)
	}
}
