// Package crypto provides cryptographic operations for pinvault.
//
// Record encryption uses AES-256-GCM with:
//   - 32-byte key derived from the master key
//   - 12-byte random nonce per encryption operation
//   - record id bound as additional authenticated data
//   - 16-byte tag stored separately from the ciphertext
//
// PIN hashing uses PBKDF2-HMAC-SHA256 with:
//   - 16-byte random salt, fresh for every PIN set or change
//   - 100,000 iterations, carried in the credential
//
// Sub-keys are derived from the master key with HKDF-SHA256 and fixed
// context labels, so the same master key always yields the same keys.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call DerivedKeys.Destroy() when done with derived keys
package crypto
