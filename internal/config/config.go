package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"raine/internal/constants"
	"raine/internal/models"
	"raine/internal/security"
	"raine/internal/validation"

	"github.com/robfig/cron/v3"
)

var (
	ErrMissingDBPath   = models.ConfigError{Message: "missing database path"}
	ErrInvalidTimezone = models.ConfigError{Message: "invalid notification timezone"}
)

// LoadConfig reads the JSON config at path, fills defaults and applies
// environment overrides.
func LoadConfig(path string) (*models.Config, error) {
	cleaned, err := security.ConfigFilePolicy.Clean(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(cleaned) // #nosec G304 - Path validated by security.ConfigFilePolicy above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	applyDefaults(c)

	if _, err := time.LoadLocation(c.Notifications.Timezone); err != nil {
		return ErrInvalidTimezone
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.RetryQueue.Schedule); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid retry queue schedule %q: %v", c.RetryQueue.Schedule, err)}
	}
	if _, err := parser.Parse(c.Cleanup.Schedule); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid cleanup schedule %q: %v", c.Cleanup.Schedule, err)}
	}

	if c.Cleanup.BatchSize > constants.MaxBatchWriteSize {
		return models.ConfigError{Message: fmt.Sprintf("cleanup batch size must not exceed %d", constants.MaxBatchWriteSize)}
	}
	for field, days := range map[string]int{
		"device_retention_days":  c.Cleanup.DeviceRetentionDays,
		"event_retention_days":   c.Cleanup.EventRetentionDays,
		"webhook_retention_days": c.Cleanup.WebhookRetentionDays,
	} {
		if err := validation.ValidateRetentionDays(days, field); err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	}
	return nil
}

// applyDefaults fills every zero-valued setting with its default.
func applyDefaults(c *models.Config) {
	setInt(&c.Server.Port, constants.DefaultServerPort)
	setInt(&c.Server.ReadTimeoutSec, constants.DefaultServerReadTimeoutSec)
	setInt(&c.Server.WriteTimeoutSec, constants.DefaultServerWriteTimeoutSec)
	setInt(&c.Server.IdleTimeoutSec, constants.DefaultServerIdleTimeoutSec)
	setInt(&c.Server.ShutdownTimeoutSec, constants.DefaultGracefulShutdownSec)
	setInt(&c.Server.Burst, constants.DefaultRequestBurst)
	setInt(&c.Server.MaxRequestBodyKB, constants.DefaultMaxRequestBodyKB)
	if c.Server.RequestsPerSecond <= 0 {
		c.Server.RequestsPerSecond = constants.DefaultRequestsPerSecond
	}

	setInt(&c.Database.BusyTimeoutMs, constants.DefaultDatabaseBusyTimeoutMs)
	setInt(&c.Database.MaxOpenConns, constants.DefaultDatabaseMaxOpenConns)

	setString(&c.Push.Endpoint, constants.DefaultPushEndpoint)
	setInt(&c.Push.TimeoutMs, constants.DefaultPushTimeoutMs)
	setInt(&c.Push.Concurrency, constants.DefaultPushConcurrency)
	setInt(&c.Push.MaxAttempts, constants.DefaultPushMaxAttempts)
	setInt(&c.Push.BreakerFailures, constants.DefaultBreakerFailures)
	setInt(&c.Push.BreakerTimeoutSec, constants.DefaultBreakerTimeoutSec)

	setString(&c.Notifications.Timezone, constants.DefaultNotificationTZ)
	setInt(&c.Notifications.MaxBodyLength, constants.DefaultMaxBodyLength)
	setString(&c.Notifications.DefaultTitle, constants.DefaultNotificationTitle)
	setString(&c.Notifications.AndroidClick, constants.DefaultAndroidClickAction)

	setString(&c.RetryQueue.Schedule, constants.DefaultRetryQueueSchedule)
	setInt(&c.RetryQueue.MaxRetries, constants.DefaultMaxRetries)
	setInt(&c.RetryQueue.BatchSize, constants.DefaultRetryBatchSize)
	setInt(&c.RetryQueue.JobTimeout, constants.DefaultJobTimeoutSec)

	setString(&c.Cleanup.Schedule, constants.DefaultCleanupSchedule)
	setInt(&c.Cleanup.DeviceRetentionDays, constants.DefaultDeviceRetentionDays)
	setInt(&c.Cleanup.EventRetentionDays, constants.DefaultEventRetentionDays)
	setInt(&c.Cleanup.WebhookRetentionDays, constants.DefaultWebhookRetentionDays)
	setInt(&c.Cleanup.TypingTTLSec, constants.DefaultTypingTTLSec)
	setInt(&c.Cleanup.RateLimitRetentionHours, constants.DefaultRateLimitRetentionHours)
	setInt(&c.Cleanup.BatchSize, constants.DefaultCleanupBatchSize)
	setInt(&c.Cleanup.JobTimeout, constants.DefaultCleanupJobTimeoutSec)

	setString(&c.Billing.DefaultPlan, constants.DefaultSubscriptionPlan)

	setString(&c.Tracing.ServiceName, "raine")
	setString(&c.Tracing.ServiceVersion, "dev")
	setString(&c.Tracing.Environment, "development")

	setInt(&c.Retry.InitialBackoffMs, constants.DefaultRetryBackoffMs)
	setInt(&c.Retry.MaxBackoffMs, constants.DefaultMaxBackoffMs)
	setInt(&c.Retry.MaxAttempts, constants.DefaultMaxAttempts)

	setString(&c.LogLevel, "info")
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}

	// SECURITY: secrets should be set via environment variables
	if secret := os.Getenv("RAINE_ENCRYPTION_SECRET"); secret != "" {
		c.Database.EncryptionSecret = secret
	}
	if secret := os.Getenv("RAINE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("REVENUECAT_WEBHOOK_SECRET"); secret != "" {
		c.Billing.WebhookSecret = secret
	}
	if secret := os.Getenv("RAINE_EVENT_SECRET"); secret != "" {
		c.Events.Secret = secret
	}
	if token := os.Getenv("FCM_ACCESS_TOKEN"); token != "" {
		c.Push.AccessToken = token
	}
	if project := os.Getenv("FCM_PROJECT_ID"); project != "" {
		c.Push.ProjectID = project
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Tracing.OTLPEndpoint = endpoint
	}
}

// IsProduction reports whether RAINE_ENV selects production mode.
func IsProduction() bool {
	return os.Getenv("RAINE_ENV") == "production"
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if IsProduction() {
		required := []struct {
			value string
			env   string
		}{
			{c.Auth.JWTSecret, "RAINE_JWT_SECRET"},
			{c.Events.Secret, "RAINE_EVENT_SECRET"},
			{c.Billing.WebhookSecret, "REVENUECAT_WEBHOOK_SECRET"},
			{c.Database.EncryptionSecret, "RAINE_ENCRYPTION_SECRET"},
		}
		for _, r := range required {
			if r.value == "" {
				return models.ConfigError{Message: fmt.Sprintf("%s is required in production", r.env)}
			}
			if len(r.value) < 32 {
				return models.ConfigError{Message: fmt.Sprintf("%s must be at least 32 characters long", r.env)}
			}
		}
		if c.Push.ProjectID == "" || c.Push.AccessToken == "" {
			return models.ConfigError{Message: "FCM_PROJECT_ID and FCM_ACCESS_TOKEN are required in production"}
		}

		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
		return nil
	}

	if c.Auth.JWTSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: RAINE_JWT_SECRET not set. Callable API requests will be rejected.\n")
	}
	if c.Billing.WebhookSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: REVENUECAT_WEBHOOK_SECRET not set. Billing webhooks will return 500.\n")
	}
	return nil
}
