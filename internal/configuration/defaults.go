package configuration

import "time"

// Context search constants.
const (
	DefaultContextEndpoint      = "https://platform-backend.getalchemystai.com/api/v1/context/search"
	DefaultContextAPIKeyEnv     = "ALCHEMYST_AI_API_KEY"
	DefaultSimilarityThreshold  = 0.6
	DefaultContextSearchTimeout = 60 * time.Second
)

// Generation constants.
const (
	DefaultProvider          = "openai"
	DefaultModel             = "gpt-4o-2024-08-06"
	DefaultTemperature       = 0.0
	DefaultMaxTokens         = 1024
	DefaultMaxSnippets       = 10
	DefaultGenerationTimeout = 120 * time.Second
)

// Retry constants.
const (
	DefaultMaxAttempts       = 3
	DefaultInitialInterval   = 2 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// Run constants.
const (
	DefaultBatchSize     = 1
	DefaultCheckpointDir = "checkpoints"
)

// Cache constants.
const (
	DefaultCacheTTL       = 24 * time.Hour
	DefaultCacheKeyPrefix = "recall:"
	DefaultRedisAddr      = "localhost:6379"
)

// Observability constants.
const (
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultMetricsAddr = ":9090"
	DefaultServiceName = "recall"
	DefaultSampling    = 1.0
)

// Temporal constants.
const (
	DefaultTemporalHostPort  = "localhost:7233"
	DefaultTemporalNamespace = "default"
	DefaultTaskQueue         = "recall"
	DefaultActivityTimeout   = 10 * time.Minute
)

// providerAPIKeyEnv maps each generation provider to its conventional
// credential variable.
var providerAPIKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
}

// DefaultAPIKeyEnv returns the credential variable used for a provider.
func DefaultAPIKeyEnv(provider string) string {
	if env, ok := providerAPIKeyEnv[provider]; ok {
		return env
	}
	return "OPENAI_API_KEY"
}

// DefaultConfig returns the configuration used when nothing is overridden:
// sequential processing, three attempts per remote call with a 2s base
// backoff, and OpenAI generation at temperature 0.
func DefaultConfig() *Config {
	return &Config{
		ContextSearch: ContextSearchConfig{
			Endpoint:            DefaultContextEndpoint,
			APIKeyEnv:           DefaultContextAPIKeyEnv,
			SimilarityThreshold: DefaultSimilarityThreshold,
			Timeout:             DefaultContextSearchTimeout,
		},
		Generation: GenerationConfig{
			Provider:    DefaultProvider,
			Model:       DefaultModel,
			APIKeyEnv:   DefaultAPIKeyEnv(DefaultProvider),
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			MaxSnippets: DefaultMaxSnippets,
			Timeout:     DefaultGenerationTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts:     DefaultMaxAttempts,
			InitialInterval: DefaultInitialInterval,
			Multiplier:      DefaultBackoffMultiplier,
		},
		Run: RunConfig{
			BatchSize:     DefaultBatchSize,
			CheckpointDir: DefaultCheckpointDir,
			EventLog:      true,
		},
		Cache: CacheConfig{
			RedisAddr: DefaultRedisAddr,
			TTL:       DefaultCacheTTL,
			KeyPrefix: DefaultCacheKeyPrefix,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
		Tracing: TracingConfig{
			SamplingRate: DefaultSampling,
			ServiceName:  DefaultServiceName,
		},
		Temporal: TemporalConfig{
			HostPort:        DefaultTemporalHostPort,
			Namespace:       DefaultTemporalNamespace,
			TaskQueue:       DefaultTaskQueue,
			ActivityTimeout: DefaultActivityTimeout,
		},
	}
}
