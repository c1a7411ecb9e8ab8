package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config.yaml and environment
// variables with the RELAY_ prefix. Environment variables take
// precedence over values from config files. Returns a populated Config
// struct or an error if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/relay")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Empty defaults register the keys with viper so AutomaticEnv can
	// populate them; Unmarshal skips env-only keys it has never seen.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "")
	v.SetDefault("webhook.signing_secret", "")

	v.SetDefault("pipeline.worker_count", 4)
	v.SetDefault("pipeline.queue_size", 100)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_base_delay_seconds", 2)
	v.SetDefault("pipeline.retry_max_delay_seconds", 300)
	v.SetDefault("pipeline.progress_interval_seconds", 5)
	v.SetDefault("pipeline.batch_concurrency", 4)
	v.SetDefault("pipeline.default_estimated_seconds", 60)

	v.SetDefault("health.consecutive_failure_limit", 5)
	v.SetDefault("health.min_health_score", 0.2)
	v.SetDefault("health.success_nudge", 0.1)
	v.SetDefault("health.failure_penalty", 0.2)
	v.SetDefault("health.latency_penalty", 0.05)
	v.SetDefault("health.latency_baseline_seconds", 30)

	v.SetDefault("webhook.timeout_seconds", 10)

	v.SetDefault("storage.media_dir", "./media")
	v.SetDefault("storage.base_url", "http://localhost:8080/media")
}
