package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illarion/pinvault/internal/crypto"
	"github.com/illarion/pinvault/internal/keyring"
	"github.com/illarion/pinvault/internal/vaulterr"
)

// PinCredentialName is the secret store key of the PIN credential.
const PinCredentialName = "pin_credential"

// SecretStore is the subset of the secret store used for credentials.
// Get must return keyring.ErrNotFound for a missing key.
type SecretStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Credentials persists the PIN credential in the secret store.
type Credentials struct {
	secrets    SecretStore
	iterations int
}

// NewCredentials creates a credential manager. A non-positive iteration
// count selects crypto.DefaultPinIters.
func NewCredentials(secrets SecretStore, iterations int) *Credentials {
	if iterations <= 0 {
		iterations = crypto.DefaultPinIters
	}
	return &Credentials{secrets: secrets, iterations: iterations}
}

// Set stores the first PIN. Fails with ErrPinAlreadySet if one exists.
func (c *Credentials) Set(ctx context.Context, pin string) error {
	if err := crypto.ValidatePin(pin); err != nil {
		return err
	}
	set, err := c.IsSet(ctx)
	if err != nil {
		return err
	}
	if set {
		return vaulterr.ErrPinAlreadySet
	}
	return c.store(pin)
}

// Replace overwrites the stored PIN with a freshly salted credential.
func (c *Credentials) Replace(ctx context.Context, pin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store(pin)
}

func (c *Credentials) store(pin string) error {
	cred, err := crypto.HashPinWithIterations(pin, c.iterations)
	if err != nil {
		return err
	}
	data, err := json.Marshal(cred)
	crypto.ClearBytes(cred.Hash)
	if err != nil {
		return fmt.Errorf("failed to encode pin credential: %w", err)
	}
	defer crypto.ClearBytes(data)
	return vaulterr.Storage("store pin credential", c.secrets.Set(PinCredentialName, data))
}

// Load returns the stored credential, or ErrNotInitialized if no PIN is set.
func (c *Credentials) Load(ctx context.Context) (*crypto.PinCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := c.secrets.Get(PinCredentialName)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, vaulterr.ErrNotInitialized
	}
	if err != nil {
		return nil, vaulterr.Storage("load pin credential", err)
	}
	var cred crypto.PinCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, vaulterr.Storage("load pin credential", fmt.Errorf("failed to decode: %w", err))
	}
	return &cred, nil
}

// IsSet reports whether a PIN credential is stored.
func (c *Credentials) IsSet(ctx context.Context) (bool, error) {
	_, err := c.Load(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, vaulterr.ErrNotInitialized):
		return false, nil
	default:
		return false, err
	}
}

// Delete removes the PIN credential. A missing credential is not an error.
func (c *Credentials) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.secrets.Delete(PinCredentialName)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return vaulterr.Storage("delete pin credential", err)
	}
	return nil
}
