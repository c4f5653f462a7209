package configuration

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix, e.g. RECALL_RUN_BATCH_SIZE.
const envPrefix = "RECALL"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and RECALL_* environment variables, in increasing order
// of precedence. The result is validated; secrets are not resolved.
func Load(path string) (*Config, error) {
	v := viper.New()

	applyDefaults(v, DefaultConfig())

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults registers every key so AutomaticEnv can override it.
func applyDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("context_search.endpoint", d.ContextSearch.Endpoint)
	v.SetDefault("context_search.api_key_env", d.ContextSearch.APIKeyEnv)
	v.SetDefault("context_search.similarity_threshold", d.ContextSearch.SimilarityThreshold)
	v.SetDefault("context_search.timeout", d.ContextSearch.Timeout)
	v.SetDefault("context_search.requests_per_second", d.ContextSearch.RequestsPerSecond)
	v.SetDefault("context_search.burst", d.ContextSearch.Burst)

	v.SetDefault("generation.provider", d.Generation.Provider)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.api_key_env", "")
	v.SetDefault("generation.base_url", d.Generation.BaseURL)
	v.SetDefault("generation.temperature", d.Generation.Temperature)
	v.SetDefault("generation.max_tokens", d.Generation.MaxTokens)
	v.SetDefault("generation.max_snippets", d.Generation.MaxSnippets)
	v.SetDefault("generation.timeout", d.Generation.Timeout)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", d.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", d.Retry.MaxInterval)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.use_jitter", d.Retry.UseJitter)
	v.SetDefault("retry.max_elapsed_time", d.Retry.MaxElapsedTime)

	v.SetDefault("run.offset", d.Run.Offset)
	v.SetDefault("run.batch_size", d.Run.BatchSize)
	v.SetDefault("run.checkpoint_dir", d.Run.CheckpointDir)
	v.SetDefault("run.event_log", d.Run.EventLog)
	v.SetDefault("run.progress", d.Run.Progress)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("temporal.host_port", d.Temporal.HostPort)
	v.SetDefault("temporal.namespace", d.Temporal.Namespace)
	v.SetDefault("temporal.task_queue", d.Temporal.TaskQueue)
	v.SetDefault("temporal.activity_timeout", d.Temporal.ActivityTimeout)
}
