package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration. Tier directories default to
// subdirectories of LibraryDir when left empty.
type Paths struct {
	LibraryDir    string `toml:"library_dir"`
	DropzoneDir   string `toml:"dropzone_dir"`
	BronzeDir     string `toml:"bronze_dir"`
	SilverDir     string `toml:"silver_dir"`
	GoldDir       string `toml:"gold_dir"`
	ArchiveDir    string `toml:"archive_dir"`
	QuarantineDir string `toml:"quarantine_dir"`
	StateDir      string `toml:"state_dir"`
	LogDir        string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Color  string `toml:"color"`
	// RetentionDays prunes daemon log files older than this; 0 keeps them all.
	RetentionDays int `toml:"retention_days"`
}

// Ingest controls dropzone polling and ingestion concurrency.
type Ingest struct {
	Workers      int      `toml:"workers"`
	PollInterval int      `toml:"poll_interval"`
	Extensions   []string `toml:"extensions"`
	RemoveSource bool     `toml:"remove_source"`
}

// Burst holds the burst/duplicate classification policy. Windows are seconds,
// similarities are percentages.
type Burst struct {
	SequenceWindowSeconds   float64 `toml:"sequence_window_seconds"`
	BurstWindowSeconds      float64 `toml:"burst_window_seconds"`
	DuplicateSimilarity     float64 `toml:"duplicate_similarity"`
	NearDuplicateSimilarity float64 `toml:"near_duplicate_similarity"`
}

// LocalProvider configures an Ollama-compatible local inference endpoint.
type LocalProvider struct {
	Endpoint string `toml:"endpoint"`
	Model    string `toml:"model"`
}

// OpenAIProvider configures an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

// VisionProvider configures Google Cloud Vision.
type VisionProvider struct {
	CredentialsFile string `toml:"credentials_file"`
	MaxResults      int    `toml:"max_results"`
}

// EnrichmentCache selects where enrichment results are memoized.
type EnrichmentCache struct {
	Backend  string `toml:"backend"`
	Path     string `toml:"path"`
	RedisURL string `toml:"redis_url"`
	TTLHours int    `toml:"ttl_hours"`
}

// Enrichment contains AI enrichment orchestration settings.
type Enrichment struct {
	Primary           string          `toml:"primary"`
	Fallback          string          `toml:"fallback"`
	PromptVersion     string          `toml:"prompt_version"`
	Workers           int             `toml:"workers"`
	RequestTimeout    int             `toml:"request_timeout"`
	RetryMaxAttempts  int             `toml:"retry_max_attempts"`
	RetryBackoff      int             `toml:"retry_backoff_ms"`
	RetryMaxBackoff   int             `toml:"retry_max_backoff_ms"`
	RequestsPerMinute int             `toml:"requests_per_minute"`
	MaxTags           int             `toml:"max_tags"`
	Local             LocalProvider   `toml:"local"`
	OpenAI            OpenAIProvider  `toml:"openai"`
	Vision            VisionProvider  `toml:"vision"`
	Cache             EnrichmentCache `toml:"cache"`
}

// Tiers contains naming patterns for tier storage and the promotion pool size.
// Patterns accept {year}, {month}, {day}, {asset}, {hash}, {name} and {ext}.
type Tiers struct {
	BronzePattern string `toml:"bronze_pattern"`
	SilverPattern string `toml:"silver_pattern"`
	GoldPattern   string `toml:"gold_pattern"`
	Workers       int    `toml:"workers"`
}

// Faces configures the external face detection capability.
type Faces struct {
	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// S3 holds S3-compatible archive storage settings.
type S3 struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	PathStyle bool   `toml:"path_style"`
}

// Archive selects the archive tier backend.
type Archive struct {
	Backend string `toml:"backend"`
	S3      S3     `toml:"s3"`
}

// Daemon contains the HTTP API and dropzone schedule settings.
type Daemon struct {
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Notifications configures ntfy push messages for dropzone scans.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for darkroom.
//
// Configuration sections by subsystem:
//   - Paths: library, tier, quarantine, state and log directories
//   - Logging: log format, level and colour
//   - Ingest: dropzone polling and ingestion pool
//   - Burst: burst/duplicate classification thresholds
//   - Enrichment: AI providers, retry policy, cache
//   - Tiers: storage naming patterns
//   - Faces: face detection capability
//   - Archive: archive tier backend (local or s3)
//   - Daemon: HTTP API bind address and token
//   - Notifications: ntfy topic for scan summaries
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Ingest        Ingest        `toml:"ingest"`
	Burst         Burst         `toml:"burst"`
	Enrichment    Enrichment    `toml:"enrichment"`
	Tiers         Tiers         `toml:"tiers"`
	Faces         Faces         `toml:"faces"`
	Archive       Archive       `toml:"archive"`
	Daemon        Daemon        `toml:"daemon"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/darkroom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("darkroom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the tier, quarantine, state and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DropzoneDir,
		c.Paths.BronzeDir,
		c.Paths.SilverDir,
		c.Paths.GoldDir,
		c.Paths.QuarantineDir,
		c.Paths.StateDir,
		c.Paths.LogDir,
	}
	if c.Archive.Backend == ArchiveBackendLocal {
		dirs = append(dirs, c.Paths.ArchiveDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite catalog location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "darkroom.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "darkroomd.lock")
}

// LogPath returns the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "darkroom.log")
}

// CorruptQuarantineDir holds files that failed to decode.
func (c *Config) CorruptQuarantineDir() string {
	return filepath.Join(c.Paths.QuarantineDir, "corrupt")
}

// DuplicateQuarantineDir holds byte-identical repeats of ingested files.
func (c *Config) DuplicateQuarantineDir() string {
	return filepath.Join(c.Paths.QuarantineDir, "duplicates")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
