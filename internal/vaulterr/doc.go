// Package vaulterr defines the error taxonomy shared by the vault packages.
//
// Classes:
//   - StorageError: I/O failure against the secret store or record store
//   - ErrInvalidFormat: malformed PIN or option input, rejected before crypto work
//   - ErrTamperDetected: authentication tag verification failure
//   - LockedOutError: attempt during an active lockout, carries the remaining time
//   - ErrNotInitialized: master key or PIN does not exist yet
//
// Nothing in the vault retries automatically. Callers classify with
// errors.Is and errors.As.
package vaulterr
