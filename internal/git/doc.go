// Package git checks whether a vault file is exposed to a git repository.
//
// The vault file holds only ciphertext, but committing it publishes the
// whole encrypted corpus and its metadata. The check reports:
//   - Whether the vault file is inside a git work tree
//   - Whether it is tracked by git (should not be)
//   - Whether it is covered by .gitignore (should be)
package git
