// Package biometric abstracts the platform biometric prompt.
package biometric

import (
	"context"
	"errors"
)

var (
	// ErrCancelled is returned when the user dismisses the prompt. It is not
	// a failed authentication.
	ErrCancelled = errors.New("biometric prompt cancelled")
	// ErrRejected is returned when the prompt completed but did not match.
	ErrRejected = errors.New("biometric authentication rejected")
)

// Prompt is a platform biometric provider.
type Prompt interface {
	Available(ctx context.Context) (bool, error)
	Authenticate(ctx context.Context, reason string) error
}

// Unsupported is the provider for platforms without biometric hardware.
type Unsupported struct{}

func (Unsupported) Available(context.Context) (bool, error) { return false, nil }

func (Unsupported) Authenticate(context.Context, string) error { return ErrCancelled }

// Func adapts a function to Prompt. The prompt is always available.
type Func func(ctx context.Context, reason string) error

func (f Func) Available(context.Context) (bool, error) { return true, nil }

func (f Func) Authenticate(ctx context.Context, reason string) error {
	return f(ctx, reason)
}

// IsCancelled reports whether err means the user or the context aborted the
// prompt rather than failing it.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
