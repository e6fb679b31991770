package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Push          PushConfig          `json:"push"`
	Notifications NotificationsConfig `json:"notifications"`
	RetryQueue    RetryQueueConfig    `json:"retry_queue"`
	Cleanup       CleanupConfig       `json:"cleanup"`
	Auth          AuthConfig          `json:"auth"`
	Billing       BillingConfig       `json:"billing"`
	Events        EventsConfig        `json:"events"`
	Tracing       TracingConfig       `json:"tracing"`
	Retry         RetryConfig         `json:"retry"`
	LogLevel      string              `json:"log_level"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port               int      `json:"port"`
	ReadTimeoutSec     int      `json:"read_timeout_sec"`
	WriteTimeoutSec    int      `json:"write_timeout_sec"`
	IdleTimeoutSec     int      `json:"idle_timeout_sec"`
	RequestsPerSecond  float64  `json:"requests_per_second"`
	Burst              int      `json:"burst"`
	TrustedProxies     []string `json:"trusted_proxies"`
	MaxRequestBodyKB   int      `json:"max_request_body_kb"`
	ShutdownTimeoutSec int      `json:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path             string `json:"path"`
	EncryptionSecret string `json:"encryption_secret"`
	BusyTimeoutMs    int    `json:"busy_timeout_ms"`
	MaxOpenConns     int    `json:"max_open_conns"`
}

// PushConfig configures the FCM HTTP v1 transport
type PushConfig struct {
	Endpoint          string `json:"endpoint"`
	ProjectID         string `json:"project_id"`
	AccessToken       string `json:"access_token"`
	TimeoutMs         int    `json:"timeout_ms"`
	Concurrency       int    `json:"concurrency"`
	MaxAttempts       int    `json:"max_attempts"`
	BreakerFailures   int    `json:"breaker_failures"`
	BreakerTimeoutSec int    `json:"breaker_timeout_sec"`
}

// NotificationsConfig controls dispatch formatting and preference evaluation
type NotificationsConfig struct {
	Timezone      string `json:"timezone"`
	MaxBodyLength int    `json:"max_body_length"`
	DefaultTitle  string `json:"default_title"`
	AndroidClick  string `json:"android_click_action"`
}

// RetryQueueConfig controls the durable retry processor
type RetryQueueConfig struct {
	Schedule   string `json:"schedule"`
	MaxRetries int    `json:"max_retries"`
	BatchSize  int    `json:"batch_size"`
	JobTimeout int    `json:"job_timeout_sec"`
}

// CleanupConfig controls the daily sweeper
type CleanupConfig struct {
	Schedule                string `json:"schedule"`
	DeviceRetentionDays     int    `json:"device_retention_days"`
	EventRetentionDays      int    `json:"event_retention_days"`
	WebhookRetentionDays    int    `json:"webhook_retention_days"`
	TypingTTLSec            int    `json:"typing_ttl_sec"`
	RateLimitRetentionHours int    `json:"rate_limit_retention_hours"`
	BatchSize               int    `json:"batch_size"`
	JobTimeout              int    `json:"job_timeout_sec"`
}

// AuthConfig configures caller token verification
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	Audience  string `json:"audience"`
}

// BillingConfig holds the RevenueCat webhook settings
type BillingConfig struct {
	WebhookSecret string `json:"webhook_secret"`
	DefaultPlan   string `json:"default_plan"`
}

// EventsConfig authenticates internal event triggers
type EventsConfig struct {
	Secret string `json:"secret"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
