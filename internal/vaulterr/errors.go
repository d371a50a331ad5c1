package vaulterr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidFormat        = errors.New("invalid format")
	ErrTamperDetected       = errors.New("tamper detected")
	ErrNotInitialized       = errors.New("vault not initialized")
	ErrLockedOut            = errors.New("too many failed attempts")
	ErrSessionLocked        = errors.New("vault is locked")
	ErrAlreadyExists        = errors.New("vault already exists")
	ErrPinAlreadySet        = errors.New("pin already set")
	ErrBiometricUnavailable = errors.New("biometric authentication unavailable")
	ErrRecordNotFound       = errors.New("record not found")
)

// StorageError reports a failed secret store or record store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError. A nil err stays nil and an existing
// StorageError is returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// LockedOutError is returned while a lockout is active.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	secs := int((e.Remaining + time.Second - 1) / time.Second)
	return fmt.Sprintf("%s, try again in %ds", ErrLockedOut.Error(), secs)
}

// Is makes errors.Is(err, ErrLockedOut) match any LockedOutError.
func (e *LockedOutError) Is(target error) bool {
	return target == ErrLockedOut
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
