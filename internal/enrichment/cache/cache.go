package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"darkroom/internal/config"
)

// Key identifies one cached enrichment. Bumping any component misses.
type Key struct {
	ContentHash   string
	Provider      string
	Model         string
	PromptVersion string
}

// String renders the key in a stable, colon-separated form.
func (k Key) String() string {
	return strings.Join([]string{
		strings.TrimSpace(k.ContentHash),
		strings.TrimSpace(k.Provider),
		strings.TrimSpace(k.Model),
		strings.TrimSpace(k.PromptVersion),
	}, ":")
}

func (k Key) valid() bool {
	return strings.TrimSpace(k.ContentHash) != "" && strings.TrimSpace(k.Provider) != ""
}

// Entry is a cached result. Result holds the serialized enrichment.
type Entry struct {
	Key      string          `json:"key"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Result   json.RawMessage `json:"result"`
	CachedAt time.Time       `json:"cached_at"`
}

// Store is implemented by every cache backend.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Put(ctx context.Context, key Key, entry Entry) error
	Close() error
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, Key) (Entry, bool, error) { return Entry{}, false, nil }
func (Nop) Put(context.Context, Key, Entry) error         { return nil }
func (Nop) Close() error                                  { return nil }

// FromConfig builds the configured backend.
func FromConfig(cfg config.EnrichmentCache, logger *slog.Logger) (Store, error) {
	ttl := time.Duration(cfg.TTLHours) * time.Hour
	switch cfg.Backend {
	case config.CacheBackendNone, "":
		return Nop{}, nil
	case config.CacheBackendFile:
		return NewFile(cfg.Path, ttl, logger), nil
	case config.CacheBackendRedis:
		return NewRedis(cfg.RedisURL, ttl)
	default:
		return nil, fmt.Errorf("enrichment cache: unsupported backend %q", cfg.Backend)
	}
}

func expired(entry Entry, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && !entry.CachedAt.IsZero() && now.Sub(entry.CachedAt) > ttl
}
