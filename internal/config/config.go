package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Pipeline PipelineConfig `mapstructure:"pipeline" validate:"required"`
	Health   HealthConfig   `mapstructure:"health" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL selects the in-memory task store.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains virtual-key validation settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// PipelineConfig contains the generation pipeline tunables.
type PipelineConfig struct {
	WorkerCount             int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize               int `mapstructure:"queue_size" validate:"required,gt=0"`
	MaxRetries              int `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseDelaySeconds   int `mapstructure:"retry_base_delay_seconds" validate:"required,gt=0"`
	RetryMaxDelaySeconds    int `mapstructure:"retry_max_delay_seconds" validate:"required,gt=0"`
	ProgressIntervalSeconds int `mapstructure:"progress_interval_seconds" validate:"required,gt=0"`
	BatchConcurrency        int `mapstructure:"batch_concurrency" validate:"required,gt=0"`
	DefaultEstimatedSeconds int `mapstructure:"default_estimated_seconds" validate:"required,gt=0"`
}

// HealthConfig contains the provider health score policy tunables.
type HealthConfig struct {
	ConsecutiveFailureLimit int     `mapstructure:"consecutive_failure_limit" validate:"required,gt=0"`
	MinHealthScore          float64 `mapstructure:"min_health_score" validate:"gte=0,lte=1"`
	SuccessNudge            float64 `mapstructure:"success_nudge" validate:"gt=0,lte=1"`
	FailurePenalty          float64 `mapstructure:"failure_penalty" validate:"gt=0,lte=1"`
	LatencyPenalty          float64 `mapstructure:"latency_penalty" validate:"gte=0,lte=1"`
	LatencyBaselineSeconds  int     `mapstructure:"latency_baseline_seconds" validate:"required,gt=0"`
}

// LLMConfig contains LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}

// WebhookConfig contains outbound webhook delivery settings.
type WebhookConfig struct {
	SigningSecret  string `mapstructure:"signing_secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// StorageConfig contains media storage settings.
type StorageConfig struct {
	MediaDir string `mapstructure:"media_dir" validate:"required"`
	BaseURL  string `mapstructure:"base_url" validate:"required,url"`
}
