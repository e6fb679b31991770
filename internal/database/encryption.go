package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptionSalt = "raine-device-token-v1"
	keySize        = 32 // AES-256
	nonceSize      = 12
	kdfIterations  = 100000
)

// encryptedPrefix marks values written by an enabled encryptor so rows
// written before encryption was turned on still read back.
const encryptedPrefix = "enc:"

// encryptor protects push tokens at rest. A nil gcm passes values through.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor(secret string) (*encryptor, error) {
	if secret == "" {
		return &encryptor{}, nil
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	key := pbkdf2.Key([]byte(secret), []byte(encryptionSalt), kdfIterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) enabled() bool {
	return e.gcm != nil
}

func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

func (e *encryptor) Decrypt(stored string) (string, error) {
	if len(stored) < len(encryptedPrefix) || stored[:len(encryptedPrefix)] != encryptedPrefix {
		return stored, nil
	}
	if !e.enabled() {
		return "", fmt.Errorf("value is encrypted but no encryption secret is configured")
	}

	data, err := base64.StdEncoding.DecodeString(stored[len(encryptedPrefix):])
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
