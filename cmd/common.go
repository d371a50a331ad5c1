package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/illarion/pinvault/internal/auth"
	"github.com/illarion/pinvault/internal/core"
	"github.com/illarion/pinvault/internal/vaulterr"
)

const newPinEnvVar = "PINVAULT_NEW_PIN"

var (
	errPinRequired    = errors.New("pin required: set " + core.PinEnvVar + " or run in a terminal")
	errNewPinRequired = errors.New("new pin required: set " + newPinEnvVar + " or run in a terminal")
)

var getenv = os.Getenv

// GetPIN retrieves the PIN from the environment or prompts for it.
func GetPIN(prompt string) (string, error) {
	if pin := core.GetPinFromEnv(); pin != "" {
		return pin, nil
	}
	if !core.IsTerminal() {
		return "", errPinRequired
	}
	return core.ReadPin(prompt)
}

// GetNewPIN is GetPIN with a confirmation prompt for interactive input.
func GetNewPIN(prompt string) (string, error) {
	if pin := core.GetPinFromEnv(); pin != "" {
		return pin, nil
	}
	if !core.IsTerminal() {
		return "", errPinRequired
	}
	return core.ReadPinConfirm(prompt)
}

// HandleError prints err the way the user should see it and exits.
func HandleError(err error) {
	writeError(os.Stderr, err)
	os.Exit(1)
}

func writeError(w io.Writer, err error) {
	var locked *vaulterr.LockedOutError
	switch {
	case errors.As(err, &locked):
		fmt.Fprintf(w, "Error: %s\n", locked)
	case errors.Is(err, vaulterr.ErrNotInitialized):
		fmt.Fprintf(w, "Error: vault not initialized\n")
		fmt.Fprintf(w, "Run 'pinvault init' first\n")
	case errors.Is(err, vaulterr.ErrAlreadyExists):
		fmt.Fprintf(w, "Error: a vault already exists at this path\n")
		fmt.Fprintf(w, "Use 'pinvault status' to see its state\n")
	case errors.Is(err, vaulterr.ErrSessionLocked):
		fmt.Fprintf(w, "Error: vault is locked\n")
		fmt.Fprintf(w, "Run 'pinvault unlock' first\n")
	case errors.Is(err, auth.ErrWrongPin):
		fmt.Fprintf(w, "Error: wrong PIN\n")
	case errors.Is(err, vaulterr.ErrTamperDetected):
		fmt.Fprintf(w, "Error: vault data failed verification and may have been modified\n")
	case errors.Is(err, vaulterr.ErrRecordNotFound):
		fmt.Fprintf(w, "Error: record not found\n")
	case errors.Is(err, vaulterr.ErrInvalidFormat):
		fmt.Fprintf(w, "Error: %s\n", err)
	case vaulterr.IsStorage(err):
		fmt.Fprintf(w, "Error: %s\n", err)
		fmt.Fprintf(w, "Check that the vault file and the OS keyring are accessible\n")
	default:
		fmt.Fprintf(w, "Error: %s\n", err)
	}
}
