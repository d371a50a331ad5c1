package core

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/illarion/pinvault/internal/crypto"
)

// PinEnvVar holds a PIN for non-interactive use.
const PinEnvVar = "PINVAULT_PIN"

// ReadPin reads a PIN from the terminal without echoing
func ReadPin(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	pin, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read pin: %w", err)
	}
	defer crypto.ClearBytes(pin)

	return string(pin), nil
}

// ReadPinConfirm reads a new PIN twice and ensures both entries match
func ReadPinConfirm(prompt string) (string, error) {
	first, err := ReadPin(prompt)
	if err != nil {
		return "", err
	}
	if err := crypto.ValidatePin(first); err != nil {
		return "", err
	}

	second, err := ReadPin("Confirm PIN: ")
	if err != nil {
		return "", err
	}

	if !crypto.ConstantTimeCompare([]byte(first), []byte(second)) {
		return "", fmt.Errorf("pins do not match")
	}
	return first, nil
}

// GetPinFromEnv reads the PIN from PINVAULT_PIN. Returns "" when unset.
func GetPinFromEnv() string {
	return os.Getenv(PinEnvVar)
}

// IsTerminal reports whether stdin is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
