// Package configuration holds the settings of an evaluation run and the
// loader that assembles them from defaults, an optional YAML file and
// RECALL_* environment variables.
package configuration

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must be greater than 0")
	errMaxIntervalInvalid     = errors.New("maxInterval must be 0 or >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")
	errMaxElapsedTimeInvalid  = errors.New("maxElapsedTime must be >= 0")
	errMissingAPIKey          = errors.New("api key environment variable is empty")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the complete configuration of the harness. It is built once at
// process start and passed by value or pointer into each component.
type Config struct {
	ContextSearch ContextSearchConfig `mapstructure:"context_search" json:"context_search"`
	Generation    GenerationConfig    `mapstructure:"generation" json:"generation"`
	Retry         RetryConfig         `mapstructure:"retry" json:"retry"`
	Run           RunConfig           `mapstructure:"run" json:"run"`
	Cache         CacheConfig         `mapstructure:"cache" json:"cache"`
	Logging       LoggingConfig       `mapstructure:"logging" json:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics" json:"metrics"`
	Tracing       TracingConfig       `mapstructure:"tracing" json:"tracing"`
	Temporal      TemporalConfig      `mapstructure:"temporal" json:"temporal"`
}

// ContextSearchConfig configures the remote context search service.
type ContextSearchConfig struct {
	Endpoint            string        `mapstructure:"endpoint" json:"endpoint" validate:"required,url"`
	APIKeyEnv           string        `mapstructure:"api_key_env" json:"api_key_env" validate:"required"`
	APIKey              string        `mapstructure:"-" json:"-"` // Sensitive, resolved from APIKeyEnv
	SimilarityThreshold float64       `mapstructure:"similarity_threshold" json:"similarity_threshold" validate:"gte=0,lte=1"`
	Timeout             time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second" json:"requests_per_second" validate:"gte=0"` // 0 disables the limiter
	Burst               int           `mapstructure:"burst" json:"burst" validate:"gte=0"`
}

// GenerationConfig configures the fallback answer generation provider.
// Model and temperature are fixed for the whole run.
type GenerationConfig struct {
	Provider    string        `mapstructure:"provider" json:"provider" validate:"required,oneof=openai anthropic google"`
	Model       string        `mapstructure:"model" json:"model" validate:"required"`
	APIKeyEnv   string        `mapstructure:"api_key_env" json:"api_key_env"` // Defaults per provider when empty
	APIKey      string        `mapstructure:"-" json:"-"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url" validate:"omitempty,url"`
	Temperature float64       `mapstructure:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens" validate:"gt=0"`
	MaxSnippets int           `mapstructure:"max_snippets" json:"max_snippets" validate:"gt=0"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
}

// RetryConfig controls how remote calls are retried.
// The wait after failed attempt a (zero-indexed) is
// InitialInterval * Multiplier^a, capped at MaxInterval when set.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" json:"max_attempts"`         // Total attempts including the first
	InitialInterval time.Duration `mapstructure:"initial_interval" json:"initial_interval"` // Base backoff
	MaxInterval     time.Duration `mapstructure:"max_interval" json:"max_interval"`         // 0 = uncapped
	Multiplier      float64       `mapstructure:"multiplier" json:"multiplier"`
	UseJitter       bool          `mapstructure:"use_jitter" json:"use_jitter"`             // Full jitter randomization
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time" json:"max_elapsed_time"` // 0 = unlimited
}

// RunConfig holds the externally tunable behavior of a run.
type RunConfig struct {
	Offset        int    `mapstructure:"offset" json:"offset" validate:"gte=0"`
	BatchSize     int    `mapstructure:"batch_size" json:"batch_size" validate:"gte=1"`
	CheckpointDir string `mapstructure:"checkpoint_dir" json:"checkpoint_dir" validate:"required"`
	EventLog      bool   `mapstructure:"event_log" json:"event_log"` // Append run events to events.jsonl
	Progress      bool   `mapstructure:"progress" json:"progress"`
}

// CacheConfig controls the optional Redis cache of successful remote calls.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled" json:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr" json:"redis_addr" validate:"required_if=Enabled true"`
	RedisPassword string        `mapstructure:"redis_password" json:"-"` // Sensitive
	RedisDB       int           `mapstructure:"redis_db" json:"redis_db" validate:"gte=0"`
	TTL           time.Duration `mapstructure:"ttl" json:"ttl" validate:"gte=0"`
	KeyPrefix     string        `mapstructure:"key_prefix" json:"key_prefix"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" validate:"oneof=text json"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr" validate:"required_if=Enabled true"`
}

// TracingConfig configures OTLP span export. An empty endpoint disables
// export; spans are then recorded by the global no-op provider.
type TracingConfig struct {
	Endpoint     string  `mapstructure:"endpoint" json:"endpoint"`
	Insecure     bool    `mapstructure:"insecure" json:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate" json:"sampling_rate" validate:"gte=0,lte=1"`
	ServiceName  string  `mapstructure:"service_name" json:"service_name"`
}

// TemporalConfig configures the durable workflow driver.
type TemporalConfig struct {
	HostPort        string        `mapstructure:"host_port" json:"host_port" validate:"required"`
	Namespace       string        `mapstructure:"namespace" json:"namespace" validate:"required"`
	TaskQueue       string        `mapstructure:"task_queue" json:"task_queue" validate:"required"`
	ActivityTimeout time.Duration `mapstructure:"activity_timeout" json:"activity_timeout" validate:"gt=0"`
}

// Validate checks field constraints and the retry schedule.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return c.Retry.Validate()
}

// Validate checks that the retry schedule is well formed.
func (r RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, r.MaxAttempts)
	}
	if r.InitialInterval <= 0 {
		return fmt.Errorf("%w, got %v", errInitialIntervalInvalid, r.InitialInterval)
	}
	if r.MaxInterval != 0 && r.MaxInterval < r.InitialInterval {
		return fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v",
			errMaxIntervalInvalid, r.MaxInterval, r.InitialInterval)
	}
	if r.Multiplier < 1.0 {
		return fmt.Errorf("%w, got %f", errMultiplierInvalid, r.Multiplier)
	}
	if r.MaxElapsedTime < 0 {
		return fmt.Errorf("%w, got %v", errMaxElapsedTimeInvalid, r.MaxElapsedTime)
	}
	return nil
}

// ResolveSecrets fills API keys from the environment variables named in
// the configuration. Missing keys are an error; the harness cannot make a
// single successful remote call without them.
func (c *Config) ResolveSecrets() error {
	return c.resolveSecrets(os.LookupEnv)
}

func (c *Config) resolveSecrets(lookup func(string) (string, bool)) error {
	if c.Generation.APIKeyEnv == "" {
		c.Generation.APIKeyEnv = DefaultAPIKeyEnv(c.Generation.Provider)
	}

	key, ok := lookup(c.ContextSearch.APIKeyEnv)
	if !ok || key == "" {
		return fmt.Errorf("%w: %s", errMissingAPIKey, c.ContextSearch.APIKeyEnv)
	}
	c.ContextSearch.APIKey = key

	key, ok = lookup(c.Generation.APIKeyEnv)
	if !ok || key == "" {
		return fmt.Errorf("%w: %s", errMissingAPIKey, c.Generation.APIKeyEnv)
	}
	c.Generation.APIKey = key

	return nil
}
