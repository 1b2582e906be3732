package testsupport

import (
	"path/filepath"
	"testing"

	"darkroom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Enrichment defaults to the local provider with no fallback and no cache so
// tests opt into each collaborator explicitly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	library := filepath.Join(base, "library")
	cfgVal.Paths = config.Paths{
		LibraryDir:    library,
		DropzoneDir:   filepath.Join(library, "dropzone"),
		BronzeDir:     filepath.Join(library, "bronze"),
		SilverDir:     filepath.Join(library, "silver"),
		GoldDir:       filepath.Join(library, "gold"),
		ArchiveDir:    filepath.Join(library, "archive"),
		QuarantineDir: filepath.Join(library, "quarantine"),
		StateDir:      filepath.Join(base, "state"),
		LogDir:        filepath.Join(base, "logs"),
	}
	cfgVal.Enrichment.Primary = config.ProviderLocal
	cfgVal.Enrichment.Fallback = config.ProviderNone
	cfgVal.Enrichment.Cache.Backend = config.CacheBackendNone
	cfgVal.Enrichment.Cache.Path = filepath.Join(base, "state", "enrichment_cache.json")
	cfgVal.Enrichment.RetryMaxAttempts = 2
	cfgVal.Enrichment.RetryBackoff = 1
	cfgVal.Enrichment.RetryMaxBackoff = 5
	cfgVal.Enrichment.RequestTimeout = 5
	cfgVal.Enrichment.RequestsPerMinute = 6000
	cfgVal.Daemon.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithLocalEndpoint points the local provider at a test server.
func WithLocalEndpoint(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enrichment.Local.Endpoint = endpoint
	}
}

// WithOpenAIEndpoint points the OpenAI provider at a test server and sets a key.
func WithOpenAIEndpoint(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enrichment.OpenAI.Endpoint = endpoint
		b.cfg.Enrichment.OpenAI.APIKey = "test-key"
	}
}

// WithProviders selects the primary and fallback enrichment providers.
func WithProviders(primary, fallback string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enrichment.Primary = primary
		b.cfg.Enrichment.Fallback = fallback
	}
}

// WithFileCache enables the JSON file enrichment cache under the temp dir.
func WithFileCache() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enrichment.Cache.Backend = config.CacheBackendFile
	}
}

// WithFacesEndpoint configures the face detection capability.
func WithFacesEndpoint(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Faces.Endpoint = endpoint
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
