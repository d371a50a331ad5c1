// Package keys manages the vault master key and the sub-keys derived from it.
//
// The master key never leaves the secret store except for the duration of a
// single operation. Callers must Destroy every MasterKey they receive.
package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/illarion/pinvault/internal/crypto"
	"github.com/illarion/pinvault/internal/keyring"
	"github.com/illarion/pinvault/internal/logging"
	"github.com/illarion/pinvault/internal/vaulterr"
)

// MasterKeyName is the secret store key of the master key.
const MasterKeyName = "master_key"

// SecretStore is the subset of the secret store the key manager needs.
// Get must return keyring.ErrNotFound for a missing key.
type SecretStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Has(key string) bool
}

// MasterKey is the root key of the hierarchy.
type MasterKey struct {
	b []byte
}

// Bytes returns the key material. The slice is zeroed by Destroy.
func (k *MasterKey) Bytes() []byte {
	return k.b
}

// Destroy zeroes the key material
func (k *MasterKey) Destroy() {
	if k == nil {
		return
	}
	crypto.ClearBytes(k.b)
}

// Manager creates, loads and wipes the master key.
type Manager struct {
	secrets SecretStore
}

func NewManager(secrets SecretStore) *Manager {
	return &Manager{secrets: secrets}
}

// EnsureMasterKey returns the stored master key, generating and persisting
// a new one on first use. Calling it twice yields the same key.
func (m *Manager) EnsureMasterKey(ctx context.Context) (*MasterKey, error) {
	mk, err := m.LoadMasterKey(ctx)
	if err == nil {
		return mk, nil
	}
	if !errors.Is(err, vaulterr.ErrNotInitialized) {
		return nil, err
	}

	b, err := crypto.GenerateRandom(crypto.KeySize)
	if err != nil {
		return nil, err
	}
	if err := m.secrets.Set(MasterKeyName, b); err != nil {
		crypto.ClearBytes(b)
		return nil, vaulterr.Storage("store master key", err)
	}
	logging.Debugf("generated new master key")
	return &MasterKey{b: b}, nil
}

// LoadMasterKey returns the stored master key, or ErrNotInitialized when
// there is none. It never generates a key.
func (m *Manager) LoadMasterKey(ctx context.Context) (*MasterKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := m.secrets.Get(MasterKeyName)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, vaulterr.ErrNotInitialized
	}
	if err != nil {
		return nil, vaulterr.Storage("load master key", err)
	}
	if len(b) != crypto.KeySize {
		crypto.ClearBytes(b)
		return nil, vaulterr.Storage("load master key",
			fmt.Errorf("stored key has %d bytes, want %d", len(b), crypto.KeySize))
	}
	return &MasterKey{b: b}, nil
}

// HasMasterKey reports whether a master key is stored. It does not read
// the key material into memory.
func (m *Manager) HasMasterKey() bool {
	return m.secrets.Has(MasterKeyName)
}

// DeriveKeys derives the database and attachment keys from mk.
func DeriveKeys(mk *MasterKey) (*crypto.DerivedKeys, error) {
	if mk == nil {
		return nil, crypto.ErrInvalidKey
	}
	return crypto.DeriveKeys(mk.b)
}

// Wipe deletes the master key. A missing key is not an error.
func (m *Manager) Wipe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.secrets.Delete(MasterKeyName); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return vaulterr.Storage("delete master key", err)
	}
	return nil
}
