package constants

// Default server configuration values
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultRequestsPerSecond     = 20.0
	DefaultRequestBurst          = 40
	DefaultMaxRequestBodyKB      = 64
	ServerErrorChannelSize       = 1
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
	DefaultDatabaseBusyTimeoutMs = 5000
	DefaultDatabaseMaxOpenConns  = 1
	DefaultBackoffInitialMs      = 500
	DefaultBackoffMaxSec         = 5
)

// Push transport defaults
const (
	DefaultPushEndpoint          = "https://fcm.googleapis.com"
	DefaultPushTimeoutMs         = 10000
	DefaultPushConcurrency       = 8
	DefaultPushMaxAttempts       = 3
	DefaultBreakerFailures       = 5
	DefaultBreakerTimeoutSec     = 30
	InvalidRegistrationTokenCode = "messaging/invalid-registration-token"
	TokenNotRegisteredCode       = "messaging/registration-token-not-registered"
)

// Notification formatting
const (
	DefaultNotificationTitle   = "New Message"
	DefaultNotificationTZ      = "UTC"
	DefaultMaxBodyLength       = 100
	DefaultAndroidClickAction  = "FLUTTER_NOTIFICATION_CLICK"
	DefaultNotificationSound   = "default"
	DefaultAndroidPriority     = "high"
	DefaultAPNsBadge           = 1
	NotificationTypeNewMessage = "new_message"
	TruncationSuffix           = "..."
)

// Retry queue policy
const (
	DefaultRetryQueueSchedule = "@every 5m"
	DefaultMaxRetries         = 3
	DefaultRetryBatchSize     = 100
	DefaultJobTimeoutSec      = 240
)

// Cleanup policy
const (
	DefaultCleanupSchedule         = "0 3 * * *"
	DefaultDeviceRetentionDays     = 30
	DefaultEventRetentionDays      = 7
	DefaultWebhookRetentionDays    = 90
	DefaultTypingTTLSec            = 10
	DefaultRateLimitRetentionHours = 24
	DefaultCleanupBatchSize        = 500
	DefaultCleanupJobTimeoutSec    = 540
	MaxBatchWriteSize              = 500
)

// Idempotency marker function names
const (
	FunctionOnMessageCreated = "onMessageCreated"
	FunctionOnUserCreate     = "onUserCreate"
	FunctionOnUserDelete     = "onUserDelete"
)

// Billing defaults
const (
	DefaultSubscriptionPlan = "premium"
)

// Privacy settings
const (
	DefaultIDMaskLength    = 4
	DefaultTokenMaskLength = 6
)
