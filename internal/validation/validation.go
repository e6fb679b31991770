package validation

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"raine/internal/errors"
)

// Field limits for caller-supplied values.
const (
	MaxIDLength          = 128
	MaxTokenLength       = 4096
	MaxRoomNameLength    = 100
	MaxMessageLength     = 4000
	MaxReasonLength      = 100
	MaxDescriptionLength = 1000
	MaxAppVersionLength  = 32
)

// ValidateID validates an opaque identifier such as a room, user, message or device id
func ValidateID(value, fieldName string) error {
	if value == "" {
		return errors.NewInvalidInputError(fieldName, "is required")
	}

	if len(value) > MaxIDLength {
		return errors.NewInvalidInputError(fieldName,
			fmt.Sprintf("too long (max %d characters)", MaxIDLength))
	}

	for _, char := range value {
		if unicode.IsControl(char) || unicode.IsSpace(char) || char == '/' {
			return errors.NewInvalidInputError(fieldName, "contains invalid characters")
		}
	}

	return nil
}

// ValidateOptionalID validates an identifier only when it is present
func ValidateOptionalID(value, fieldName string) error {
	if value == "" {
		return nil
	}
	return ValidateID(value, fieldName)
}

// ValidatePushToken validates a device push token
func ValidatePushToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.NewInvalidInputError("token", "is required")
	}

	if len(token) > MaxTokenLength {
		return errors.NewInvalidInputError("token",
			fmt.Sprintf("too long (max %d characters)", MaxTokenLength))
	}

	return nil
}

// ValidateText validates free text: required, bounded in characters, no NUL bytes
func ValidateText(value, fieldName string, maxLength int) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewInvalidInputError(fieldName, "is required")
	}

	if !utf8.ValidString(value) {
		return errors.NewInvalidInputError(fieldName, "must be valid UTF-8")
	}

	if utf8.RuneCountInString(value) > maxLength {
		return errors.NewInvalidInputError(fieldName,
			fmt.Sprintf("too long (max %d characters)", maxLength))
	}

	if strings.ContainsRune(value, '\x00') {
		return errors.NewInvalidInputError(fieldName, "contains invalid characters")
	}

	return nil
}

// ValidateStringLength validates string length against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	length := utf8.RuneCountInString(value)
	if length < minLength {
		return errors.NewInvalidInputError(fieldName,
			fmt.Sprintf("too short (min %d characters)", minLength))
	}

	if length > maxLength {
		return errors.NewInvalidInputError(fieldName,
			fmt.Sprintf("too long (max %d characters)", maxLength))
	}

	return nil
}

// ValidateQuietHours accepts empty bounds or "HH:MM" 24-hour values
func ValidateQuietHours(start, end string) error {
	for field, value := range map[string]string{"quietHoursStart": start, "quietHoursEnd": end} {
		if value == "" {
			continue
		}
		if !isClock(value) {
			return errors.NewInvalidInputError(field, "must be HH:MM")
		}
	}
	return nil
}

func isClock(value string) bool {
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	hour := int(value[0]-'0')*10 + int(value[1]-'0')
	minute := int(value[3]-'0')*10 + int(value[4]-'0')
	return hour < 24 && minute < 60
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.NewInvalidInputError("body",
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateRetentionDays validates data retention period
func ValidateRetentionDays(days int, fieldName string) error {
	return ValidateNumericRange(days, fieldName, 1, 3650)
}
