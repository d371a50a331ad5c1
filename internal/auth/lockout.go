package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/illarion/pinvault/internal/biometric"
	"github.com/illarion/pinvault/internal/crypto"
	"github.com/illarion/pinvault/internal/logging"
	"github.com/illarion/pinvault/internal/storage"
	"github.com/illarion/pinvault/internal/vaulterr"
)

const (
	DefaultMaxFailedAttempts = 3
	DefaultLockoutDuration   = 30 * time.Second
	DefaultAutoLockTimeout   = 5 * time.Minute

	biometricReason = "Unlock your vault"
)

// Policy holds the tunable limits of the lockout and auto-lock machinery.
type Policy struct {
	MaxFailedAttempts      int
	LockoutDuration        time.Duration
	DefaultAutoLockTimeout time.Duration
}

// DefaultPolicy returns three attempts, a 30 second lockout and a five
// minute auto-lock.
func DefaultPolicy() Policy {
	return Policy{
		MaxFailedAttempts:      DefaultMaxFailedAttempts,
		LockoutDuration:        DefaultLockoutDuration,
		DefaultAutoLockTimeout: DefaultAutoLockTimeout,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxFailedAttempts <= 0 {
		p.MaxFailedAttempts = d.MaxFailedAttempts
	}
	if p.LockoutDuration <= 0 {
		p.LockoutDuration = d.LockoutDuration
	}
	if p.DefaultAutoLockTimeout <= 0 {
		p.DefaultAutoLockTimeout = d.DefaultAutoLockTimeout
	}
	return p
}

// StateStore persists the AuthState document.
type StateStore interface {
	LoadAuthState(ctx context.Context) (storage.AuthState, error)
	UpdateAuthState(ctx context.Context, fn func(*storage.AuthState) error) error
}

// Status is a snapshot of the authentication state.
type Status struct {
	PinSet             bool
	BiometricEnabled   bool
	BiometricAvailable bool
	FailedAttempts     int
	AttemptsRemaining  int
	LockedOut          bool
	LockoutRemaining   time.Duration
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock sets the clock. Tests pass a quartz mock.
func WithClock(clock quartz.Clock) Option {
	return func(a *Authenticator) { a.clock = clock }
}

// WithPolicy sets the lockout policy.
func WithPolicy(p Policy) Option {
	return func(a *Authenticator) { a.policy = p.withDefaults() }
}

// WithBiometric sets the biometric provider.
func WithBiometric(p biometric.Prompt) Option {
	return func(a *Authenticator) { a.prompt = p }
}

// Authenticator is the lockout state machine. At most one attempt is in
// flight per Authenticator.
type Authenticator struct {
	mu     sync.Mutex
	creds  *Credentials
	states StateStore
	prompt biometric.Prompt
	clock  quartz.Clock
	policy Policy
}

func NewAuthenticator(creds *Credentials, states StateStore, opts ...Option) *Authenticator {
	a := &Authenticator{
		creds:  creds,
		states: states,
		prompt: biometric.Unsupported{},
		clock:  quartz.NewReal(),
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authenticator) Policy() Policy { return a.policy }

// lockedOut returns the remaining lockout time, or zero when open.
func lockedOut(st *storage.AuthState, now time.Time) time.Duration {
	if st.LockoutUntil == nil || !now.Before(*st.LockoutUntil) {
		return 0
	}
	return st.LockoutUntil.Sub(now)
}

// evict clears an expired lockout and clamps the counter. Reports whether
// st changed.
func (a *Authenticator) evict(st *storage.AuthState, now time.Time) bool {
	changed := false
	if st.LockoutUntil != nil && !now.Before(*st.LockoutUntil) {
		st.ClearLockout()
		changed = true
	}
	if st.FailedAttempts < 0 {
		st.FailedAttempts = 0
		changed = true
	}
	if st.FailedAttempts > a.policy.MaxFailedAttempts {
		st.FailedAttempts = a.policy.MaxFailedAttempts
		changed = true
	}
	return changed
}

func (a *Authenticator) fail(st *storage.AuthState, now time.Time) {
	a.evict(st, now)
	st.FailedAttempts++
	if st.FailedAttempts >= a.policy.MaxFailedAttempts {
		st.FailedAttempts = a.policy.MaxFailedAttempts
		until := now.Add(a.policy.LockoutDuration)
		st.LockoutUntil = &until
	}
}

func succeed(st *storage.AuthState, now time.Time, unlock bool) {
	st.ClearLockout()
	if unlock {
		st.LastUnlockAt = &now
	}
}

// current loads the state and persists a lazy eviction if one applies.
func (a *Authenticator) current(ctx context.Context) (storage.AuthState, error) {
	st, err := a.states.LoadAuthState(ctx)
	if err != nil {
		return st, vaulterr.Storage("load auth state", err)
	}
	now := a.clock.Now()
	if !a.evict(&st, now) {
		return st, nil
	}
	err = a.states.UpdateAuthState(ctx, func(s *storage.AuthState) error {
		a.evict(s, now)
		st = *s
		return nil
	})
	return st, vaulterr.Storage("update auth state", err)
}

// record applies the outcome of a completed attempt in one transaction.
// A success starts a session only when unlock is set.
func (a *Authenticator) record(ctx context.Context, ok, unlock bool) error {
	err := a.states.UpdateAuthState(ctx, func(st *storage.AuthState) error {
		now := a.clock.Now()
		// Another process may have locked the vault since we checked.
		if remaining := lockedOut(st, now); remaining > 0 {
			return &vaulterr.LockedOutError{Remaining: remaining}
		}
		if ok {
			succeed(st, now, unlock)
			return nil
		}
		a.fail(st, now)
		if st.LockoutUntil != nil {
			logging.Warnf("too many failed attempts, locked out for %s", a.policy.LockoutDuration)
		}
		return nil
	})
	var locked *vaulterr.LockedOutError
	if errors.As(err, &locked) {
		return err
	}
	return vaulterr.Storage("update auth state", err)
}

// VerifyPin checks pin against the stored credential. A wrong PIN returns
// (false, nil) and counts as a failed attempt. During a lockout it returns
// a *vaulterr.LockedOutError without consuming an attempt.
func (a *Authenticator) VerifyPin(ctx context.Context, pin string) (bool, error) {
	if err := crypto.ValidatePin(pin); err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.verify(ctx, pin, true)
}

// verify runs one counted PIN attempt. The caller holds a.mu and has
// validated the format.
func (a *Authenticator) verify(ctx context.Context, pin string, unlock bool) (bool, error) {
	st, err := a.current(ctx)
	if err != nil {
		return false, err
	}
	if remaining := lockedOut(&st, a.clock.Now()); remaining > 0 {
		return false, &vaulterr.LockedOutError{Remaining: remaining}
	}

	cred, err := a.creds.Load(ctx)
	if err != nil {
		return false, err
	}
	ok, err := crypto.VerifyPin(pin, cred)
	if err != nil {
		return false, err
	}
	if err := a.record(ctx, ok, unlock); err != nil {
		return false, err
	}
	if !ok {
		logging.Infof("pin verification failed")
	}
	return ok, nil
}

// AuthenticateBiometric runs the biometric prompt. Success unlocks like a
// correct PIN and a rejection counts as a failed attempt. A cancelled
// prompt changes nothing and returns the cancellation error.
func (a *Authenticator) AuthenticateBiometric(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.current(ctx)
	if err != nil {
		return false, err
	}
	if !st.BiometricEnabled {
		return false, fmt.Errorf("%w: not enabled", vaulterr.ErrBiometricUnavailable)
	}
	if remaining := lockedOut(&st, a.clock.Now()); remaining > 0 {
		return false, &vaulterr.LockedOutError{Remaining: remaining}
	}
	available, err := a.prompt.Available(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to query biometric hardware: %w", err)
	}
	if !available {
		return false, fmt.Errorf("%w: no enrolled hardware", vaulterr.ErrBiometricUnavailable)
	}

	err = a.prompt.Authenticate(ctx, biometricReason)
	switch {
	case err == nil:
		if err := a.record(ctx, true, true); err != nil {
			return false, err
		}
		return true, nil
	case biometric.IsCancelled(err):
		logging.Debugf("biometric prompt cancelled")
		return false, err
	case errors.Is(err, biometric.ErrRejected):
		if err := a.record(ctx, false, true); err != nil {
			return false, err
		}
		logging.Infof("biometric authentication rejected")
		return false, nil
	default:
		return false, fmt.Errorf("biometric prompt failed: %w", err)
	}
}

// ChangePin verifies oldPin through the lockout path and replaces the
// credential with one for newPin. A wrong oldPin counts as a failed
// attempt. A correct one resets the counter but does not start a session.
func (a *Authenticator) ChangePin(ctx context.Context, oldPin, newPin string) error {
	if err := crypto.ValidatePin(oldPin); err != nil {
		return err
	}
	if err := crypto.ValidatePin(newPin); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ok, err := a.verify(ctx, oldPin, false)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongPin
	}
	return a.creds.Replace(ctx, newPin)
}

// ErrWrongPin is returned by operations that require a correct PIN as a
// precondition.
var ErrWrongPin = errors.New("incorrect pin")

// State returns a snapshot of the authentication state.
func (a *Authenticator) State(ctx context.Context) (Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.current(ctx)
	if err != nil {
		return Status{}, err
	}
	pinSet, err := a.creds.IsSet(ctx)
	if err != nil {
		return Status{}, err
	}
	available, err := a.prompt.Available(ctx)
	if err != nil {
		logging.Debugf("biometric availability check failed: %v", err)
		available = false
	}

	remaining := lockedOut(&st, a.clock.Now())
	return Status{
		PinSet:             pinSet,
		BiometricEnabled:   st.BiometricEnabled,
		BiometricAvailable: available,
		FailedAttempts:     st.FailedAttempts,
		AttemptsRemaining:  a.policy.MaxFailedAttempts - st.FailedAttempts,
		LockedOut:          remaining > 0,
		LockoutRemaining:   remaining,
	}, nil
}

// EnableBiometric turns on biometric unlock. The hardware must be available.
func (a *Authenticator) EnableBiometric(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	available, err := a.prompt.Available(ctx)
	if err != nil {
		return fmt.Errorf("failed to query biometric hardware: %w", err)
	}
	if !available {
		return fmt.Errorf("%w: no enrolled hardware", vaulterr.ErrBiometricUnavailable)
	}
	return a.setBiometric(ctx, true)
}

// DisableBiometric turns off biometric unlock.
func (a *Authenticator) DisableBiometric(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setBiometric(ctx, false)
}

func (a *Authenticator) setBiometric(ctx context.Context, enabled bool) error {
	err := a.states.UpdateAuthState(ctx, func(st *storage.AuthState) error {
		st.BiometricEnabled = enabled
		return nil
	})
	return vaulterr.Storage("update auth state", err)
}
