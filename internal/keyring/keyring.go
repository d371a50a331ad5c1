// Package keyring stores vault secrets in the OS keyring.
//
// Values are base64 encoded because OS keyrings store strings. Keys are
// namespaced per vault so several vault files can share one keyring.
package keyring

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const DefaultService = "pinvault"

var ErrNotFound = errors.New("secret not found")

// Store is a secret store backed by the OS keyring.
type Store struct {
	service string
	prefix  string
}

// New creates a store for vaultID under the given keyring service name.
func New(service, vaultID string) *Store {
	if service == "" {
		service = DefaultService
	}
	return &Store{service: service, prefix: vaultID + "/"}
}

func (s *Store) account(key string) string {
	return s.prefix + key
}

// Get retrieves a secret. Returns ErrNotFound if it does not exist.
func (s *Store) Get(key string) ([]byte, error) {
	encoded, err := keyring.Get(s.service, s.account(key))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return value, nil
}

// Set stores a secret, replacing any previous value.
func (s *Store) Set(key string, value []byte) error {
	if err := keyring.Set(s.service, s.account(key), base64.StdEncoding.EncodeToString(value)); err != nil {
		return fmt.Errorf("failed to write %s to keyring: %w", key, err)
	}
	return nil
}

// Delete removes a secret. Deleting a missing secret is not an error.
func (s *Store) Delete(key string) error {
	err := keyring.Delete(s.service, s.account(key))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
	}
	return nil
}

// Has checks if a secret is stored
func (s *Store) Has(key string) bool {
	_, err := keyring.Get(s.service, s.account(key))
	return err == nil
}
