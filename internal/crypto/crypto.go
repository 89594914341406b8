// Package crypto seals push subscription secrets at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMissingKey         = errors.New("encryption key is required")
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes for AES-256")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Sealer encrypts a value bound to an owner string, typically the push
// endpoint the secret belongs to. Opening with a different owner fails.
type Sealer interface {
	Seal(plaintext, owner string) (string, error)
	Open(ciphertext, owner string) (string, error)
}

type aesGCMSealer struct {
	aead cipher.AEAD
}

// NewSealer creates an AES-256-GCM sealer from a 32-byte key.
func NewSealer(key string) (Sealer, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesGCMSealer{aead: aead}, nil
}

func (s *aesGCMSealer) Seal(plaintext, owner string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(owner))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *aesGCMSealer) Open(ciphertext, owner string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}

	nonce, body := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, body, []byte(owner))
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}

	return string(plaintext), nil
}
