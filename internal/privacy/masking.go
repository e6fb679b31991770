package privacy

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaskUserID masks a user identifier
// Example: "user123456" -> "******3456"
func MaskUserID(userID string) string {
	return maskString(userID, 4)
}

// MaskToken masks a push token, keeping the last 6 characters so log lines
// can be correlated with provider responses.
func MaskToken(token string) string {
	return maskString(token, 6)
}

// MaskEmail keeps the first character of the local part and the domain.
// Example: "alice@example.com" -> "a****@example.com"
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return maskString(email, 0)
	}
	local, domain := email[:at], email[at:]
	first, size := utf8.DecodeRuneInString(local)
	return string(first) + strings.Repeat("*", utf8.RuneCountInString(local[size:])) + domain
}

// MaskText hides message content, reporting only its length.
func MaskText(text string) string {
	if text == "" {
		return ""
	}
	return "[" + strconv.Itoa(utf8.RuneCountInString(text)) + " chars]"
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= keepLast {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-keepLast) + string(runes[len(runes)-keepLast:])
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "user_id", "userId", "sender_id", "senderId", "recipient_id", "reporter_id", "reported_user_id", "app_user_id":
			masked[k] = MaskUserID(s)
		case "token", "push_token", "pushToken", "fcm_token":
			masked[k] = MaskToken(s)
		case "email":
			masked[k] = MaskEmail(s)
		case "text", "body", "message_text":
			masked[k] = MaskText(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
