package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateBurst(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateTiers(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	tiers := map[string]string{
		"paths.bronze_dir":     c.Paths.BronzeDir,
		"paths.silver_dir":     c.Paths.SilverDir,
		"paths.gold_dir":       c.Paths.GoldDir,
		"paths.quarantine_dir": c.Paths.QuarantineDir,
	}
	seen := make(map[string]string, len(tiers))
	for _, key := range []string{"paths.bronze_dir", "paths.silver_dir", "paths.gold_dir", "paths.quarantine_dir"} {
		dir := tiers[key]
		if other, ok := seen[dir]; ok {
			return fmt.Errorf("%s must differ from %s", key, other)
		}
		seen[dir] = key
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

func (c *Config) validateBurst() error {
	b := c.Burst
	if b.BurstWindowSeconds > b.SequenceWindowSeconds {
		return errors.New("burst.burst_window_seconds must not exceed burst.sequence_window_seconds")
	}
	if b.DuplicateSimilarity <= 0 || b.DuplicateSimilarity > 100 {
		return errors.New("burst.duplicate_similarity must be between 0 and 100")
	}
	if b.NearDuplicateSimilarity <= 0 || b.NearDuplicateSimilarity > 100 {
		return errors.New("burst.near_duplicate_similarity must be between 0 and 100")
	}
	if b.NearDuplicateSimilarity > b.DuplicateSimilarity {
		return errors.New("burst.near_duplicate_similarity must not exceed burst.duplicate_similarity")
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	e := c.Enrichment
	if err := validateProviderName("enrichment.primary", e.Primary); err != nil {
		return err
	}
	if err := validateProviderName("enrichment.fallback", e.Fallback); err != nil {
		return err
	}
	if e.Primary != ProviderNone && e.Primary == e.Fallback {
		return errors.New("enrichment.fallback must differ from enrichment.primary")
	}
	if err := ensurePositiveMap(map[string]int{
		"enrichment.workers":              e.Workers,
		"enrichment.request_timeout":      e.RequestTimeout,
		"enrichment.retry_max_attempts":   e.RetryMaxAttempts,
		"enrichment.retry_backoff_ms":     e.RetryBackoff,
		"enrichment.retry_max_backoff_ms": e.RetryMaxBackoff,
		"enrichment.max_tags":             e.MaxTags,
	}); err != nil {
		return err
	}
	if e.RetryMaxBackoff < e.RetryBackoff {
		return errors.New("enrichment.retry_max_backoff_ms must be >= enrichment.retry_backoff_ms")
	}
	uses := func(name string) bool { return e.Primary == name || e.Fallback == name }
	if uses(ProviderOpenAI) && e.OpenAI.APIKey == "" {
		return errors.New("enrichment.openai.api_key must be set when the openai provider is selected (or set OPENAI_API_KEY)")
	}
	switch e.Cache.Backend {
	case CacheBackendFile, CacheBackendNone:
	case CacheBackendRedis:
		if e.Cache.RedisURL == "" {
			return errors.New("enrichment.cache.redis_url must be set when enrichment.cache.backend is redis (or set REDIS_URL)")
		}
	default:
		return fmt.Errorf("enrichment.cache.backend must be file, redis or none (got %q)", e.Cache.Backend)
	}
	return nil
}

func validateProviderName(key, value string) error {
	switch value {
	case ProviderLocal, ProviderOpenAI, ProviderVision, ProviderNone:
		return nil
	default:
		return fmt.Errorf("%s must be local, openai, vision or none (got %q)", key, value)
	}
}

func (c *Config) validateTiers() error {
	for key, pattern := range map[string]string{
		"tiers.bronze_pattern": c.Tiers.BronzePattern,
		"tiers.silver_pattern": c.Tiers.SilverPattern,
		"tiers.gold_pattern":   c.Tiers.GoldPattern,
	} {
		if strings.Contains(pattern, "..") {
			return fmt.Errorf("%s must not contain '..'", key)
		}
		if !strings.Contains(pattern, "{hash}") && !strings.Contains(pattern, "{asset}") {
			return fmt.Errorf("%s must include {hash} or {asset} to keep names unique", key)
		}
	}
	return nil
}

func (c *Config) validateArchive() error {
	switch c.Archive.Backend {
	case ArchiveBackendLocal:
		return nil
	case ArchiveBackendS3:
		if c.Archive.S3.Bucket == "" {
			return errors.New("archive.s3.bucket must be set when archive.backend is s3")
		}
		if c.Archive.S3.AccessKey == "" || c.Archive.S3.SecretKey == "" {
			return errors.New("archive.s3.access_key and archive.s3.secret_key must be set when archive.backend is s3")
		}
		return nil
	default:
		return fmt.Errorf("archive.backend must be local or s3 (got %q)", c.Archive.Backend)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
