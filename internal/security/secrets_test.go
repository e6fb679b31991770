package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretsEqual(t *testing.T) {
	assert.True(t, SecretsEqual("s3cret", "s3cret"))
	assert.False(t, SecretsEqual("s3cret", "s3cre"))
	assert.False(t, SecretsEqual("s3cret", ""))
	assert.False(t, SecretsEqual("", ""))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			token, ok := BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}
