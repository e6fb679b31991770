package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable, client-visible category of a failure.
type ErrorCode string

const (
	ErrCodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeAlreadyProcessed ErrorCode = "ALREADY_PROCESSED"
	ErrCodeInternalError    ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeDatabaseQuery    ErrorCode = "DATABASE_QUERY"
	ErrCodePushTransport    ErrorCode = "PUSH_TRANSPORT"
)

type codeInfo struct {
	status      int
	userMessage string
}

var codes = map[ErrorCode]codeInfo{
	ErrCodeUnauthenticated:  {http.StatusUnauthorized, "User must be authenticated"},
	ErrCodeInvalidInput:     {http.StatusBadRequest, "Invalid request"},
	ErrCodePermissionDenied: {http.StatusForbidden, "Permission denied"},
	ErrCodeNotFound:         {http.StatusNotFound, "Not found"},
	ErrCodeRateLimited:      {http.StatusTooManyRequests, "Too many requests, please try again later"},
	ErrCodeAlreadyProcessed: {http.StatusOK, "Already processed"},
	ErrCodeInternalError:    {http.StatusInternalServerError, "An internal error occurred"},
	ErrCodeInvalidConfig:    {http.StatusBadRequest, "Configuration error"},
	ErrCodeDatabaseQuery:    {http.StatusServiceUnavailable, "Database operation failed"},
	ErrCodePushTransport:    {http.StatusInternalServerError, "An internal error occurred"},
}

func lookup(code ErrorCode) codeInfo {
	if info, ok := codes[code]; ok {
		return info
	}
	return codes[ErrCodeInternalError]
}

// AppError carries a code plus the structured context logged and, minus
// private keys, returned to clients.
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithContext sets key on the error and returns the same error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

// WrapRetryable is Wrap for failures a later attempt may clear.
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	appErr := Wrap(err, code, message)
	appErr.Retryable = true
	return appErr
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsRetryable(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Retryable
}

// GetCode returns ErrCodeInternalError for errors outside the taxonomy.
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

func HasCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetUserMessage prefers the error's own message over its code's default.
func GetUserMessage(err error) string {
	if appErr, ok := As(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return lookup(GetCode(err)).userMessage
}
