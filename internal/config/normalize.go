package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeIngest()
	c.normalizeBurst()
	if err := c.normalizeEnrichment(); err != nil {
		return err
	}
	c.normalizeTiers()
	c.normalizeFaces()
	c.normalizeArchive()
	c.normalizeDaemon()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("DARKROOM_LIBRARY_DIR"); ok && strings.TrimSpace(c.Paths.LibraryDir) == defaultLibraryDir {
		c.Paths.LibraryDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		c.Paths.LibraryDir = defaultLibraryDir
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}

	libraryDefaults := []struct {
		key   string
		value *string
		sub   string
	}{
		{"paths.dropzone_dir", &c.Paths.DropzoneDir, "dropzone"},
		{"paths.bronze_dir", &c.Paths.BronzeDir, "bronze"},
		{"paths.silver_dir", &c.Paths.SilverDir, "silver"},
		{"paths.gold_dir", &c.Paths.GoldDir, "gold"},
		{"paths.archive_dir", &c.Paths.ArchiveDir, "archive"},
		{"paths.quarantine_dir", &c.Paths.QuarantineDir, "quarantine"},
	}
	for _, entry := range libraryDefaults {
		if strings.TrimSpace(*entry.value) == "" {
			*entry.value = filepath.Join(c.Paths.LibraryDir, entry.sub)
		}
		if *entry.value, err = expandPath(*entry.value); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}

	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Color = strings.ToLower(strings.TrimSpace(c.Logging.Color))
	switch c.Logging.Color {
	case "auto", "always", "never":
	default:
		c.Logging.Color = defaultLogColor
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeIngest() {
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = defaultIngestWorkers
	}
	if c.Ingest.PollInterval <= 0 {
		c.Ingest.PollInterval = defaultPollInterval
	}
	exts := make([]string, 0, len(c.Ingest.Extensions))
	seen := make(map[string]struct{}, len(c.Ingest.Extensions))
	for _, ext := range c.Ingest.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, DefaultExtensions...)
	}
	c.Ingest.Extensions = exts
}

func (c *Config) normalizeBurst() {
	if c.Burst.SequenceWindowSeconds <= 0 {
		c.Burst.SequenceWindowSeconds = defaultSequenceWindowSeconds
	}
	if c.Burst.BurstWindowSeconds <= 0 {
		c.Burst.BurstWindowSeconds = defaultBurstWindowSeconds
	}
	if c.Burst.DuplicateSimilarity == 0 {
		c.Burst.DuplicateSimilarity = defaultDuplicateSimilarity
	}
	if c.Burst.NearDuplicateSimilarity == 0 {
		c.Burst.NearDuplicateSimilarity = defaultNearDuplicateSimilarity
	}
}

func (c *Config) normalizeEnrichment() error {
	e := &c.Enrichment
	e.Primary = strings.ToLower(strings.TrimSpace(e.Primary))
	if e.Primary == "" {
		e.Primary = defaultPrimaryProvider
	}
	e.Fallback = strings.ToLower(strings.TrimSpace(e.Fallback))
	if e.Fallback == "" {
		e.Fallback = ProviderNone
	}
	e.PromptVersion = strings.TrimSpace(e.PromptVersion)
	if e.Workers <= 0 {
		e.Workers = defaultEnrichmentWorkers
	}
	if e.RequestTimeout <= 0 {
		e.RequestTimeout = defaultRequestTimeout
	}
	if e.RetryMaxAttempts <= 0 {
		e.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if e.RetryBackoff <= 0 {
		e.RetryBackoff = defaultRetryBackoffMS
	}
	if e.RetryMaxBackoff <= 0 {
		e.RetryMaxBackoff = defaultRetryMaxBackoffMS
	}
	if e.RequestsPerMinute < 0 {
		e.RequestsPerMinute = 0
	}
	if e.MaxTags <= 0 {
		e.MaxTags = defaultMaxTags
	}

	e.Local.Endpoint = strings.TrimRight(strings.TrimSpace(e.Local.Endpoint), "/")
	if e.Local.Endpoint == "" {
		if value, ok := os.LookupEnv("OLLAMA_HOST"); ok && strings.TrimSpace(value) != "" {
			e.Local.Endpoint = strings.TrimRight(strings.TrimSpace(value), "/")
		} else {
			e.Local.Endpoint = defaultLocalEndpoint
		}
	}
	e.Local.Model = strings.TrimSpace(e.Local.Model)
	if e.Local.Model == "" {
		e.Local.Model = defaultLocalModel
	}

	e.OpenAI.Endpoint = strings.TrimSpace(e.OpenAI.Endpoint)
	if e.OpenAI.Endpoint == "" {
		e.OpenAI.Endpoint = defaultOpenAIEndpoint
	}
	e.OpenAI.Model = strings.TrimSpace(e.OpenAI.Model)
	if e.OpenAI.Model == "" {
		e.OpenAI.Model = defaultOpenAIModel
	}
	e.OpenAI.APIKey = strings.TrimSpace(e.OpenAI.APIKey)
	if e.OpenAI.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			e.OpenAI.APIKey = strings.TrimSpace(value)
		}
	}

	var err error
	e.Vision.CredentialsFile = strings.TrimSpace(e.Vision.CredentialsFile)
	if e.Vision.CredentialsFile == "" {
		if value, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS"); ok {
			e.Vision.CredentialsFile = strings.TrimSpace(value)
		}
	}
	if e.Vision.CredentialsFile, err = expandPath(e.Vision.CredentialsFile); err != nil {
		return fmt.Errorf("enrichment.vision.credentials_file: %w", err)
	}
	if e.Vision.MaxResults <= 0 {
		e.Vision.MaxResults = defaultVisionMaxResults
	}

	e.Cache.Backend = strings.ToLower(strings.TrimSpace(e.Cache.Backend))
	if e.Cache.Backend == "" {
		e.Cache.Backend = defaultCacheBackend
	}
	if strings.TrimSpace(e.Cache.Path) == "" {
		e.Cache.Path = filepath.Join(c.Paths.StateDir, "enrichment_cache.json")
	}
	if e.Cache.Path, err = expandPath(e.Cache.Path); err != nil {
		return fmt.Errorf("enrichment.cache.path: %w", err)
	}
	e.Cache.RedisURL = strings.TrimSpace(e.Cache.RedisURL)
	if e.Cache.RedisURL == "" {
		if value, ok := os.LookupEnv("REDIS_URL"); ok {
			e.Cache.RedisURL = strings.TrimSpace(value)
		}
	}
	if e.Cache.TTLHours < 0 {
		e.Cache.TTLHours = 0
	}
	return nil
}

func (c *Config) normalizeTiers() {
	c.Tiers.BronzePattern = strings.TrimSpace(c.Tiers.BronzePattern)
	if c.Tiers.BronzePattern == "" {
		c.Tiers.BronzePattern = defaultBronzePattern
	}
	c.Tiers.SilverPattern = strings.TrimSpace(c.Tiers.SilverPattern)
	if c.Tiers.SilverPattern == "" {
		c.Tiers.SilverPattern = defaultSilverPattern
	}
	c.Tiers.GoldPattern = strings.TrimSpace(c.Tiers.GoldPattern)
	if c.Tiers.GoldPattern == "" {
		c.Tiers.GoldPattern = defaultGoldPattern
	}
	if c.Tiers.Workers <= 0 {
		c.Tiers.Workers = defaultTierWorkers
	}
}

func (c *Config) normalizeFaces() {
	c.Faces.Endpoint = strings.TrimRight(strings.TrimSpace(c.Faces.Endpoint), "/")
	if c.Faces.TimeoutSeconds <= 0 {
		c.Faces.TimeoutSeconds = defaultFacesTimeoutSeconds
	}
}

func (c *Config) normalizeArchive() {
	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	if c.Archive.Backend == "" {
		c.Archive.Backend = defaultArchiveBackend
	}
	s3 := &c.Archive.S3
	s3.Endpoint = strings.TrimSpace(s3.Endpoint)
	s3.Bucket = strings.TrimSpace(s3.Bucket)
	s3.Prefix = strings.Trim(strings.TrimSpace(s3.Prefix), "/")
	s3.Region = strings.TrimSpace(s3.Region)
	if s3.Region == "" {
		s3.Region = defaultS3Region
	}
	if s3.AccessKey == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			s3.AccessKey = strings.TrimSpace(value)
		}
	}
	if s3.SecretKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			s3.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeDaemon() {
	c.Daemon.APIBind = strings.TrimSpace(c.Daemon.APIBind)
	c.Daemon.APIToken = strings.TrimSpace(c.Daemon.APIToken)
	if c.Daemon.APIToken == "" {
		if value, ok := os.LookupEnv("DARKROOM_API_TOKEN"); ok {
			c.Daemon.APIToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	n := &c.Notifications
	n.NtfyTopic = strings.TrimSpace(n.NtfyTopic)
	if n.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DARKROOM_NTFY_TOPIC"); ok {
			n.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if n.RequestTimeout <= 0 {
		n.RequestTimeout = defaultNtfyRequestTimeout
	}
}
