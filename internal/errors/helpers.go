package errors

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"
	userIDKey    contextKey = "user_id"
)

// ContextWithRequestID stores the request id used by FromContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithTraceID stores the trace id used by FromContext.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// ContextWithUserID stores the caller uid used by FromContext.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Common error creators for frequent use cases

// NewUnauthenticatedError is returned when a caller has no verified identity
func NewUnauthenticatedError(reason string) *AppError {
	return New(ErrCodeUnauthenticated, "authentication required").
		WithContext("reason", reason).
		WithUserMessage("User must be authenticated")
}

// NewInvalidInputError creates a validation error with field context
func NewInvalidInputError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewPermissionDeniedError creates an authorization failure
func NewPermissionDeniedError(message string) *AppError {
	return New(ErrCodePermissionDenied, message).
		WithUserMessage(message)
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewRateLimitedError creates a rate limit error carrying the reset instant
func NewRateLimitedError(action string, resetAt time.Time) *AppError {
	return New(ErrCodeRateLimited, "rate limit exceeded").
		WithContext("action", action).
		WithContext("reset_at", resetAt.UTC().Format(time.RFC3339)).
		WithUserMessage("Too many requests, please try again later")
}

// NewAlreadyProcessedError marks a duplicate event delivery
func NewAlreadyProcessedError(eventID string) *AppError {
	return New(ErrCodeAlreadyProcessed, "event already processed").
		WithContext("event_id", eventID).
		WithUserMessage("Already processed")
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewPushError creates a push transport error. 5xx, 429 and 408 are retryable.
func NewPushError(endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodePushTransport, "push transport call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	appErr.Retryable = statusCode >= 500 || statusCode == 429 || statusCode == 408
	return appErr
}

// Context helpers

// FromContext extracts error context from a context.Context if present
func FromContext(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	errorCtx := make(map[string]interface{})
	if requestID := ctx.Value(requestIDKey); requestID != nil {
		errorCtx["request_id"] = requestID
	}
	if traceID := ctx.Value(traceIDKey); traceID != nil {
		errorCtx["trace_id"] = traceID
	}
	if userID := ctx.Value(userIDKey); userID != nil {
		errorCtx["user_id"] = userID
	}

	return errorCtx
}

// HTTP helpers

// HTTPStatusCode maps err to the status its code is answered with. Push
// failures a retry may clear surface as 502.
func HTTPStatusCode(err error) int {
	if GetCode(err) == ErrCodePushTransport && IsRetryable(err) {
		return http.StatusBadGateway
	}
	return lookup(GetCode(err)).status
}

// HTTPErrorResponse is the JSON body written for failed requests
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

var privateContextKeys = map[string]bool{
	"password": true,
	"token":    true,
	"secret":   true,
	"user_id":  true,
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}
	response.Error.Code = GetCode(err)
	response.Error.Message = GetUserMessage(err)

	if appErr, ok := As(err); ok && len(appErr.Context) > 0 {
		publicContext := make(map[string]interface{})
		for k, v := range appErr.Context {
			if !privateContextKeys[k] {
				publicContext[k] = v
			}
		}
		if len(publicContext) > 0 {
			response.Error.Context = publicContext
		}
	}

	return response
}
