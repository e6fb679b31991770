package security

import (
	"crypto/subtle"
	"strings"
)

// SecretsEqual compares two secrets in constant time. An empty expected
// secret never matches.
func SecretsEqual(expected, provided string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. ok is false when the scheme is missing or the token empty.
func BearerToken(header string) (token string, ok bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token = strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
