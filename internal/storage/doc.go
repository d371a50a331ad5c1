// Package storage provides the record store for pinvault.
//
// The store persists opaque encrypted blobs keyed by record id, plus the
// companion metadata area holding the vault id and the AuthState document.
// It never sees plaintext.
//
// Two drivers implement Store:
//   - bolt: a single BBolt file with config, records and auth buckets
//   - sqlite: a single SQLite file with config, records and auth_state tables
//
// AuthState is one document updated with an atomic read-modify-write
// transaction, so failed-attempt counters and lockout timestamps never
// diverge after an interruption.
package storage
