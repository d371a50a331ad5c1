package storage

import (
	"sort"
	"time"
)

// StoredRecord is one encrypted record as persisted. The record id doubles
// as the associated data of the ciphertext.
type StoredRecord struct {
	ID         string    `json:"id"`
	Ciphertext []byte    `json:"ciphertext"`
	Nonce      []byte    `json:"nonce"`
	Tag        []byte    `json:"tag"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AuthState is the persisted authentication state of a vault.
type AuthState struct {
	FailedAttempts    int        `json:"failedAttempts"`
	LockoutUntil      *time.Time `json:"lockoutUntil,omitempty"`
	LastUnlockAt      *time.Time `json:"lastUnlockAt,omitempty"`
	AutoLockTimeoutMs int64      `json:"autoLockTimeoutMs"`
	BiometricEnabled  bool       `json:"biometricEnabled"`
}

// AutoLockTimeout returns the stored timeout, or fallback when none is set.
func (s AuthState) AutoLockTimeout(fallback time.Duration) time.Duration {
	if s.AutoLockTimeoutMs <= 0 {
		return fallback
	}
	return time.Duration(s.AutoLockTimeoutMs) * time.Millisecond
}

// ClearLockout resets the failed attempt counter and lockout together.
func (s *AuthState) ClearLockout() {
	s.FailedAttempts = 0
	s.LockoutUntil = nil
}

// sortByModified orders records newest first, ties broken by id.
func sortByModified(records []StoredRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].UpdatedAt.After(records[j].UpdatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
