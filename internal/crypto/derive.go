package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Context labels for sub-key derivation. Changing either one makes every
// existing record unreadable.
const (
	DatabaseKeyInfo   = "Vault:Database"
	AttachmentKeyInfo = "Vault:Attachments"
)

// DerivedKeys holds the sub-keys of one master key.
type DerivedKeys struct {
	Database   []byte
	Attachment []byte
}

// DeriveKeys expands masterKey into the database and attachment keys.
// It performs no I/O and uses no randomness.
func DeriveKeys(masterKey []byte) (*DerivedKeys, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("%w: master key has %d bytes", ErrInvalidKey, len(masterKey))
	}

	db, err := deriveSubKey(masterKey, DatabaseKeyInfo)
	if err != nil {
		return nil, err
	}
	att, err := deriveSubKey(masterKey, AttachmentKeyInfo)
	if err != nil {
		ClearBytes(db)
		return nil, err
	}

	return &DerivedKeys{Database: db, Attachment: att}, nil
}

func deriveSubKey(masterKey []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", info, err)
	}
	return key, nil
}

// Destroy clears both keys from memory
func (k *DerivedKeys) Destroy() {
	if k == nil {
		return
	}
	ClearBytes(k.Database)
	ClearBytes(k.Attachment)
}
