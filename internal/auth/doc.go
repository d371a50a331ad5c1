// Package auth implements PIN credentials, the lockout state machine and
// the session auto-lock policy.
//
// All authentication state is persisted in the record store's AuthState
// document so that lockouts survive process restarts. An Authenticator
// serializes attempts with a mutex and applies every transition inside a
// single UpdateAuthState transaction.
package auth
