package service

// Field names shared by the HTTP layer, the services and the scheduled jobs.
// Log queries join on these, so new call sites should reuse them.
const (
	LogFieldUserID    = "user_id"
	LogFieldRoomID    = "room_id"
	LogFieldMessageID = "message_id"
	LogFieldEventID   = "event_id"
	LogFieldDeviceID  = "device_id"
	LogFieldRetryID   = "retry_id"
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	LogFieldOperation = "operation"
	LogFieldMethod    = "method"
	LogFieldJob       = "job"
	LogFieldEventType = "event_type"
	LogFieldPlatform  = "platform"

	LogFieldDuration   = "duration_ms"
	LogFieldCount      = "count"
	LogFieldSize       = "size_bytes"
	LogFieldRecipients = "recipients"
	LogFieldTokens     = "tokens"
	LogFieldSucceeded  = "succeeded"
	LogFieldFailed     = "failed"
	LogFieldPruned     = "pruned"

	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
)

// Levels:
//   - debug: per-recipient and per-token detail, skipped sends
//   - info: lifecycle, job runs, processed events and webhooks
//   - warn: retryable failures, throttled callers, pruned tokens, best-effort
//     cleanup that failed
//   - error: failures that reach a caller or land in the retry queue
