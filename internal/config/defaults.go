package config

const (
	defaultLibraryDir              = "~/Pictures/darkroom"
	defaultStateDir                = "~/.local/share/darkroom"
	defaultLogDir                  = "~/.local/share/darkroom/logs"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogColor                = "auto"
	defaultLogRetentionDays        = 30
	defaultNtfyRequestTimeout      = 10
	defaultIngestWorkers           = 4
	defaultPollInterval            = 30
	defaultSequenceWindowSeconds   = 30
	defaultBurstWindowSeconds      = 5
	defaultDuplicateSimilarity     = 99.9
	defaultNearDuplicateSimilarity = 98.0
	defaultPrimaryProvider         = ProviderLocal
	defaultFallbackProvider        = ProviderNone
	defaultEnrichmentWorkers       = 4
	defaultRequestTimeout          = 60
	defaultRetryMaxAttempts        = 3
	defaultRetryBackoffMS          = 500
	defaultRetryMaxBackoffMS       = 8000
	defaultRequestsPerMinute       = 60
	defaultMaxTags                 = 8
	defaultLocalEndpoint           = "http://localhost:11434"
	defaultLocalModel              = "llava:latest"
	defaultOpenAIEndpoint          = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel             = "gpt-4o"
	defaultVisionMaxResults        = 10
	defaultCacheBackend            = CacheBackendFile
	defaultCacheTTLHours           = 24 * 30
	defaultBronzePattern           = "{year}/{month}/{hash}{ext}"
	defaultSilverPattern           = "{year}/{month}/{name}_{asset}{ext}"
	defaultGoldPattern             = "{year}/{month}/{name}_{asset}{ext}"
	defaultTierWorkers             = 2
	defaultFacesTimeoutSeconds     = 30
	defaultArchiveBackend          = ArchiveBackendLocal
	defaultS3Region                = "us-east-1"
	defaultAPIBind                 = "127.0.0.1:7587"
)

// Provider names accepted by enrichment.primary and enrichment.fallback.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderVision = "vision"
	ProviderNone   = "none"
)

// Cache backends accepted by enrichment.cache.backend.
const (
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"
	CacheBackendNone  = "none"
)

// Archive backends accepted by archive.backend.
const (
	ArchiveBackendLocal = "local"
	ArchiveBackendS3    = "s3"
)

// DefaultExtensions lists the file types picked up from the dropzone.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff", ".heic"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			Color:         defaultLogColor,
			RetentionDays: defaultLogRetentionDays,
		},
		Ingest: Ingest{
			Workers:      defaultIngestWorkers,
			PollInterval: defaultPollInterval,
			Extensions:   append([]string(nil), DefaultExtensions...),
			RemoveSource: true,
		},
		Burst: Burst{
			SequenceWindowSeconds:   defaultSequenceWindowSeconds,
			BurstWindowSeconds:      defaultBurstWindowSeconds,
			DuplicateSimilarity:     defaultDuplicateSimilarity,
			NearDuplicateSimilarity: defaultNearDuplicateSimilarity,
		},
		Enrichment: Enrichment{
			Primary:           defaultPrimaryProvider,
			Fallback:          defaultFallbackProvider,
			Workers:           defaultEnrichmentWorkers,
			RequestTimeout:    defaultRequestTimeout,
			RetryMaxAttempts:  defaultRetryMaxAttempts,
			RetryBackoff:      defaultRetryBackoffMS,
			RetryMaxBackoff:   defaultRetryMaxBackoffMS,
			RequestsPerMinute: defaultRequestsPerMinute,
			MaxTags:           defaultMaxTags,
			Local: LocalProvider{
				Endpoint: defaultLocalEndpoint,
				Model:    defaultLocalModel,
			},
			OpenAI: OpenAIProvider{
				Endpoint: defaultOpenAIEndpoint,
				Model:    defaultOpenAIModel,
			},
			Vision: VisionProvider{
				MaxResults: defaultVisionMaxResults,
			},
			Cache: EnrichmentCache{
				Backend:  defaultCacheBackend,
				TTLHours: defaultCacheTTLHours,
			},
		},
		Tiers: Tiers{
			BronzePattern: defaultBronzePattern,
			SilverPattern: defaultSilverPattern,
			GoldPattern:   defaultGoldPattern,
			Workers:       defaultTierWorkers,
		},
		Faces: Faces{
			TimeoutSeconds: defaultFacesTimeoutSeconds,
		},
		Archive: Archive{
			Backend: defaultArchiveBackend,
			S3: S3{
				Region: defaultS3Region,
			},
		},
		Daemon: Daemon{
			APIBind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
	}
}
