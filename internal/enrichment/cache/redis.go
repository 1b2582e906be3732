package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "darkroom:enrichment:"

// Redis stores entries as JSON strings with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis parses a redis:// URL. The connection is established lazily.
func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("enrichment cache: redis url required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("enrichment cache: parse redis url: %w", err)
	}
	return NewRedisClient(redis.NewClient(opts), ttl), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key Key) (Entry, bool, error) {
	if !key.valid() {
		return Entry{}, false, nil
	}
	raw, err := r.client.Get(ctx, redisKeyPrefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt value behaves like a miss; the next Put overwrites it.
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (r *Redis) Put(ctx context.Context, key Key, entry Entry) error {
	if !key.valid() {
		return errors.New("cache key requires content hash and provider")
	}
	entry.Key = key.String()
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+entry.Key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping verifies the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
