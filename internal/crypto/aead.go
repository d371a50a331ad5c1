package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/illarion/pinvault/internal/vaulterr"
)

// EncryptedRecord is the sealed form of one record payload. The associated
// data (the record id) is not stored here; the caller supplies it again on
// decrypt.
type EncryptedRecord struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under key with a fresh random nonce, binding aad.
func Encrypt(plaintext, key, aad []byte) (*EncryptedRecord, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateRandom(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - TagSize

	return &EncryptedRecord{
		Ciphertext: sealed[:split:split],
		Nonce:      nonce,
		Tag:        sealed[split:],
	}, nil
}

// Decrypt verifies and opens rec. Any verification failure returns
// vaulterr.ErrTamperDetected and no plaintext.
func Decrypt(rec *EncryptedRecord, key, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if rec == nil || len(rec.Nonce) != NonceSize || len(rec.Tag) != TagSize {
		return nil, vaulterr.ErrTamperDetected
	}

	sealed := make([]byte, 0, len(rec.Ciphertext)+TagSize)
	sealed = append(sealed, rec.Ciphertext...)
	sealed = append(sealed, rec.Tag...)

	plaintext, err := gcm.Open(nil, rec.Nonce, sealed, aad)
	if err != nil {
		return nil, vaulterr.ErrTamperDetected
	}
	return plaintext, nil
}
