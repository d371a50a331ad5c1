package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/illarion/pinvault/internal/logging"
	"github.com/illarion/pinvault/internal/storage"
	"github.com/illarion/pinvault/internal/vaulterr"
)

// Session decides whether the vault must be considered locked. It holds no
// state of its own: every answer is computed from the persisted AuthState
// and the current time.
type Session struct {
	states         StateStore
	clock          quartz.Clock
	defaultTimeout time.Duration
}

func NewSession(states StateStore, clock quartz.Clock, policy Policy) *Session {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Session{
		states:         states,
		clock:          clock,
		defaultTimeout: policy.withDefaults().DefaultAutoLockTimeout,
	}
}

// RecordUnlock marks the session as unlocked now.
func (s *Session) RecordUnlock(ctx context.Context) error {
	now := s.clock.Now()
	err := s.states.UpdateAuthState(ctx, func(st *storage.AuthState) error {
		st.LastUnlockAt = &now
		return nil
	})
	return vaulterr.Storage("update auth state", err)
}

// ShouldAutoLock reports whether more than the auto-lock timeout has passed
// since the last unlock. It is true when there never was an unlock and when
// the state cannot be read.
func (s *Session) ShouldAutoLock(ctx context.Context) (bool, error) {
	st, err := s.states.LoadAuthState(ctx)
	if err != nil {
		logging.Warnf("auto-lock check failed, locking: %v", err)
		return true, vaulterr.Storage("load auth state", err)
	}
	if st.LastUnlockAt == nil {
		return true, nil
	}
	elapsed := s.clock.Since(*st.LastUnlockAt)
	return elapsed > st.AutoLockTimeout(s.defaultTimeout), nil
}

// Lock ends the session immediately.
func (s *Session) Lock(ctx context.Context) error {
	err := s.states.UpdateAuthState(ctx, func(st *storage.AuthState) error {
		st.LastUnlockAt = nil
		return nil
	})
	return vaulterr.Storage("update auth state", err)
}

// SetAutoLockTimeout persists a new auto-lock timeout.
func (s *Session) SetAutoLockTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: auto-lock timeout must be positive", vaulterr.ErrInvalidFormat)
	}
	err := s.states.UpdateAuthState(ctx, func(st *storage.AuthState) error {
		st.AutoLockTimeoutMs = d.Milliseconds()
		return nil
	})
	return vaulterr.Storage("update auth state", err)
}

// Timeout returns the effective auto-lock timeout.
func (s *Session) Timeout(ctx context.Context) (time.Duration, error) {
	st, err := s.states.LoadAuthState(ctx)
	if err != nil {
		return 0, vaulterr.Storage("load auth state", err)
	}
	return st.AutoLockTimeout(s.defaultTimeout), nil
}

// UnlockedFor returns how long ago the last unlock happened, or false if
// the session was never unlocked.
func (s *Session) UnlockedFor(ctx context.Context) (time.Duration, bool, error) {
	st, err := s.states.LoadAuthState(ctx)
	if err != nil {
		return 0, false, vaulterr.Storage("load auth state", err)
	}
	if st.LastUnlockAt == nil {
		return 0, false, nil
	}
	return s.clock.Since(*st.LastUnlockAt), true, nil
}
