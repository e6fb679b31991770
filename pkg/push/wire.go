package push

import (
	"net/http"
	"strings"
)

// FCM HTTP v1 request and error bodies.

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification *Notification     `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroid       `json:"android,omitempty"`
	APNS         *fcmAPNS          `json:"apns,omitempty"`
}

type fcmAndroid struct {
	Priority     string                  `json:"priority,omitempty"`
	Notification *fcmAndroidNotification `json:"notification,omitempty"`
}

type fcmAndroidNotification struct {
	Sound       string `json:"sound,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
}

type fcmAPNS struct {
	Payload fcmAPNSPayload `json:"payload"`
}

type fcmAPNSPayload struct {
	Aps fcmAps `json:"aps"`
}

type fcmAps struct {
	Badge *int   `json:"badge,omitempty"`
	Sound string `json:"sound,omitempty"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

type fcmErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

func buildRequest(token string, msg *MulticastMessage) fcmRequest {
	m := fcmMessage{
		Token:        token,
		Notification: msg.Notification,
		Data:         msg.Data,
	}
	if a := msg.Android; a != nil {
		m.Android = &fcmAndroid{Priority: a.Priority}
		if a.Sound != "" || a.ClickAction != "" {
			m.Android.Notification = &fcmAndroidNotification{Sound: a.Sound, ClickAction: a.ClickAction}
		}
	}
	if a := msg.APNS; a != nil {
		m.APNS = &fcmAPNS{Payload: fcmAPNSPayload{Aps: fcmAps{Badge: a.Badge, Sound: a.Sound}}}
	}
	return fcmRequest{Message: m}
}

// classify maps an FCM v1 error response to a per-token error code.
func classify(status int, body *fcmErrorBody) *SendError {
	sendErr := &SendError{StatusCode: status}
	if body != nil {
		sendErr.Message = body.Error.Message
	}
	if sendErr.Message == "" {
		sendErr.Message = http.StatusText(status)
	}

	fcmCode := ""
	if body != nil {
		for _, d := range body.Error.Details {
			if d.ErrorCode != "" {
				fcmCode = d.ErrorCode
				break
			}
		}
		if fcmCode == "" {
			fcmCode = body.Error.Status
		}
	}

	switch fcmCode {
	case "UNREGISTERED", "NOT_FOUND":
		sendErr.Code = CodeTokenNotRegistered
	case "INVALID_ARGUMENT":
		if strings.Contains(strings.ToLower(sendErr.Message), "registration token") {
			sendErr.Code = CodeInvalidRegistrationToken
		} else {
			sendErr.Code = CodeInvalidArgument
		}
	case "SENDER_ID_MISMATCH":
		sendErr.Code = CodeMismatchedCredential
	case "QUOTA_EXCEEDED", "RESOURCE_EXHAUSTED":
		sendErr.Code = CodeMessageRateExceeded
	case "UNAVAILABLE":
		sendErr.Code = CodeServerUnavailable
	case "INTERNAL":
		sendErr.Code = CodeInternalError
	case "THIRD_PARTY_AUTH_ERROR":
		sendErr.Code = CodeThirdPartyAuthError
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		sendErr.Code = CodeAuthenticationError
	default:
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			sendErr.Code = CodeAuthenticationError
		case status == http.StatusTooManyRequests:
			sendErr.Code = CodeMessageRateExceeded
		case status >= 500:
			sendErr.Code = CodeServerUnavailable
		default:
			sendErr.Code = CodeUnknownError
		}
	}
	return sendErr
}

// retryable reports whether a per-token failure may succeed on a later attempt.
func retryable(e *SendError) bool {
	switch e.Code {
	case CodeMessageRateExceeded, CodeServerUnavailable, CodeInternalError:
		return true
	}
	return false
}

// transportWide reports whether a failure says nothing about the token and
// points at the service or our credentials instead.
func transportWide(e *SendError) bool {
	switch e.Code {
	case CodeMessageRateExceeded, CodeServerUnavailable, CodeInternalError,
		CodeAuthenticationError, CodeThirdPartyAuthError, CodeMismatchedCredential:
		return true
	}
	return false
}
