package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
)

const (
	KeySize   = 32 // AES-256 key size
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM authentication tag size
)

var ErrInvalidKey = errors.New("invalid key size")

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
