// Package crypto seals provider API keys stored in the settings file.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// sealedPrefix marks values produced by Seal so plaintext keys written by hand
// into settings.json still load.
const sealedPrefix = "enc:"

// ErrCiphertextTooShort is returned by Open for values shorter than a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Sealer encrypts short secrets with AES-256-GCM.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a key from secret. An empty secret falls back to a
// machine-bound seed (hostname and working directory), which keeps keys
// unreadable at a glance but is not portable between hosts.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		hostname, _ := os.Hostname()
		cwd, _ := os.Getwd()
		secret = fmt.Sprintf("docbreak:%s:%s", hostname, cwd)
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher error: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM error: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns "enc:" followed by base64. Empty input
// stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce error: %w", err)
	}
	ct := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal. Values without the "enc:" prefix are returned as is.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	ct, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode error: %w", err)
	}
	n := s.aead.NonceSize()
	if len(ct) < n {
		return "", ErrCiphertextTooShort
	}
	pt, err := s.aead.Open(nil, ct[:n], ct[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt error: %w", err)
	}
	return string(pt), nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// Mask hides all but the last four characters of a key for display.
func Mask(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return strings.Repeat("*", 4) + key[len(key)-4:]
}
