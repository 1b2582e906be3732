package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"darkroom/internal/fileutil"
	"darkroom/internal/logging"
)

// File is a JSON file backed cache. An empty path disables it.
type File struct {
	path    string
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewFile loads the cache file if present. A corrupt file is logged and the
// cache starts empty.
func NewFile(path string, ttl time.Duration, logger *slog.Logger) *File {
	logger = logging.NewComponentLogger(logger, "enrichment_cache")
	c := &File{
		path:    path,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	if path == "" {
		return c
	}
	if err := c.load(); err != nil {
		logger.Warn("failed to load enrichment cache",
			logging.String(logging.FieldEventType, "enrichment_cache_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "previously enriched photos will be sent to the provider again"))
	}
	return c
}

// Get returns the entry for key unless it is missing or older than the TTL.
func (c *File) Get(_ context.Context, key Key) (Entry, bool, error) {
	if c.path == "" || !key.valid() {
		return Entry{}, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key.String()]
	if !ok || expired(entry, c.ttl, c.now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put stores entry and persists the cache.
func (c *File) Put(_ context.Context, key Key, entry Entry) error {
	if !key.valid() {
		return errors.New("cache key requires content hash and provider")
	}
	if c.path == "" {
		return nil
	}
	entry.Key = key.String()
	if entry.CachedAt.IsZero() {
		entry.CachedAt = c.now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key] = entry
	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	c.logger.Debug("cached enrichment result",
		logging.String(logging.FieldContentHash, key.ContentHash),
		logging.String(logging.FieldProvider, key.Provider),
		logging.String("prompt_version", key.PromptVersion))
	return nil
}

// Count returns the number of stored entries, expired ones included.
func (c *File) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *File) Close() error { return nil }

func (c *File) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}
	now := c.now()
	for _, entry := range entries {
		if entry.Key == "" || expired(entry, c.ttl, now) {
			continue
		}
		c.entries[entry.Key] = entry
	}
	c.logger.Debug("loaded enrichment cache",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", c.path))
	return nil
}

func (c *File) save() error {
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	return fileutil.WriteFileAtomic(c.path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
