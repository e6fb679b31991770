package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-test-secret-of-32-chars!"

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := newEncryptor(testSecret)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("device-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ciphertext, encryptedPrefix))
	assert.NotContains(t, ciphertext, "device-token")

	again, err := enc.Encrypt("device-token")
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, again, "nonces are random")

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "device-token", plaintext)
}

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := newEncryptor("")
	require.NoError(t, err)

	out, err := enc.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = enc.Decrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	_, err = enc.Decrypt(encryptedPrefix + "AAAA")
	assert.Error(t, err)
}

func TestEncryptor_LegacyPlaintextReadsBack(t *testing.T) {
	enc, err := newEncryptor(testSecret)
	require.NoError(t, err)

	out, err := enc.Decrypt("written-before-encryption")
	require.NoError(t, err)
	assert.Equal(t, "written-before-encryption", out)
}

func TestEncryptor_WrongKeyFails(t *testing.T) {
	a, err := newEncryptor(testSecret)
	require.NoError(t, err)
	b, err := newEncryptor(strings.Repeat("z", 32))
	require.NoError(t, err)

	ciphertext, err := a.Encrypt("token")
	require.NoError(t, err)

	_, err = b.Decrypt(ciphertext)
	assert.Error(t, err)

	_, err = a.Decrypt(encryptedPrefix + "!!notbase64")
	assert.Error(t, err)

	_, err = a.Decrypt(encryptedPrefix + "AAAA")
	assert.Error(t, err)
}
