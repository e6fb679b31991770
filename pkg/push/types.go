package push

import "context"

// Per-token error codes reported in SendResponse.Error.Code.
const (
	CodeInvalidRegistrationToken = "messaging/invalid-registration-token"
	CodeTokenNotRegistered       = "messaging/registration-token-not-registered"
	CodeInvalidArgument          = "messaging/invalid-argument"
	CodeMismatchedCredential     = "messaging/mismatched-credential"
	CodeMessageRateExceeded      = "messaging/message-rate-exceeded"
	CodeServerUnavailable        = "messaging/server-unavailable"
	CodeInternalError            = "messaging/internal-error"
	CodeThirdPartyAuthError      = "messaging/third-party-auth-error"
	CodeAuthenticationError      = "messaging/authentication-error"
	CodeUnknownError             = "messaging/unknown-error"
)

// Sender delivers one message to many device tokens.
type Sender interface {
	SendEachForMulticast(ctx context.Context, msg *MulticastMessage) (*BatchResponse, error)
}

// Notification is the user-visible part of a push message.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// AndroidConfig carries Android-specific delivery options.
type AndroidConfig struct {
	Priority    string
	Sound       string
	ClickAction string
}

// APNSConfig carries iOS-specific delivery options.
type APNSConfig struct {
	Badge *int
	Sound string
}

// MulticastMessage is sent once per token in Tokens.
type MulticastMessage struct {
	Tokens       []string
	Notification *Notification
	Data         map[string]string
	Android      *AndroidConfig
	APNS         *APNSConfig
}

// SendError describes a failed delivery to one token.
type SendError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *SendError) Error() string {
	return e.Code + ": " + e.Message
}

// IsTokenError reports whether the token itself is bad and should be removed
func (e *SendError) IsTokenError() bool {
	return e != nil && (e.Code == CodeInvalidRegistrationToken || e.Code == CodeTokenNotRegistered)
}

// SendResponse is the result for one token, in the same order as Tokens.
type SendResponse struct {
	Success   bool
	MessageID string
	Error     *SendError
}

// BatchResponse aggregates the per-token results of a multicast.
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []SendResponse
}
