package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/illarion/pinvault/internal/vaulterr"
)

const (
	PinLength       = 6
	PinSaltSize     = 16     // 128-bit salt
	PinHashSize     = 32     // 256-bit output
	DefaultPinIters = 100000 // PBKDF2 iterations for PIN hashing
)

// PinCredential is the stored form of a PIN.
type PinCredential struct {
	Salt       []byte `json:"salt"`
	Hash       []byte `json:"hash"`
	Iterations int    `json:"iterations"`
}

// ValidatePin checks that pin is exactly six ASCII digits.
func ValidatePin(pin string) error {
	if len(pin) != PinLength {
		return fmt.Errorf("%w: pin must be %d digits", vaulterr.ErrInvalidFormat, PinLength)
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return fmt.Errorf("%w: pin must be %d digits", vaulterr.ErrInvalidFormat, PinLength)
		}
	}
	return nil
}

// HashPin hashes pin with a fresh salt and the default iteration count.
func HashPin(pin string) (*PinCredential, error) {
	return HashPinWithIterations(pin, DefaultPinIters)
}

// HashPinWithIterations hashes pin with a fresh salt and the given
// iteration count.
func HashPinWithIterations(pin string, iterations int) (*PinCredential, error) {
	if err := ValidatePin(pin); err != nil {
		return nil, err
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive", vaulterr.ErrInvalidFormat)
	}

	salt, err := GenerateRandom(PinSaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &PinCredential{
		Salt:       salt,
		Hash:       derivePinHash(pin, salt, iterations),
		Iterations: iterations,
	}, nil
}

// VerifyPin recomputes the hash of pin with the credential's salt and
// iterations and compares it in constant time.
func VerifyPin(pin string, cred *PinCredential) (bool, error) {
	if err := ValidatePin(pin); err != nil {
		return false, err
	}
	if cred == nil || len(cred.Salt) == 0 || len(cred.Hash) == 0 || cred.Iterations <= 0 {
		return false, fmt.Errorf("%w: malformed pin credential", vaulterr.ErrInvalidFormat)
	}

	computed := derivePinHash(pin, cred.Salt, cred.Iterations)
	defer ClearBytes(computed)

	return ConstantTimeCompare(computed, cred.Hash), nil
}

func derivePinHash(pin string, salt []byte, iterations int) []byte {
	pinBytes := []byte(pin)
	defer ClearBytes(pinBytes)
	return pbkdf2.Key(pinBytes, salt, iterations, PinHashSize, sha256.New)
}
