package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/pinvault/internal/crypto"
)

// Bucket names
var (
	ConfigBucket  = []byte("config")  // version, timestamps, vault id - unencrypted
	RecordsBucket = []byte("records") // Encrypted record blobs keyed by id
	AuthBucket    = []byte("auth")    // AuthState document - unencrypted
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigVaultID  = []byte("vault_id")

	authStateKey = []byte("state")
)

const schemaVersion = "1"

// Bolt provides BBolt-based storage for pinvault
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates a pinvault database
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Bolt{db: db}, nil
}

func (s *Bolt) Driver() string { return DriverBolt }

func (s *Bolt) Path() string { return s.db.Path() }

// Close closes the database
func (s *Bolt) Close() error {
	return s.db.Close()
}

// Initialize creates the bucket structure. It is safe to call on an
// already initialized database.
func (s *Bolt) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, RecordsBucket, AuthBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if config.Get(ConfigVersion) != nil {
			return nil
		}
		if err := config.Put(ConfigVersion, []byte(schemaVersion)); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Bolt) IsInitialized(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// GetVaultID retrieves the vault ID from config bucket
func (s *Bolt) GetVaultID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var vaultID string
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket not found")
		}
		data := config.Get(ConfigVaultID)
		if data == nil {
			return ErrNotFound
		}
		vaultID = string(data)
		return nil
	})
	return vaultID, err
}

// GetOrCreateVaultID retrieves existing vault ID or generates a new one
func (s *Bolt) GetOrCreateVaultID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var vaultID string
	err := s.db.Update(func(tx *bolt.Tx) error {
		config, err := tx.CreateBucketIfNotExists(ConfigBucket)
		if err != nil {
			return err
		}
		if data := config.Get(ConfigVaultID); data != nil {
			vaultID = string(data)
			return nil
		}
		id, err := newVaultID()
		if err != nil {
			return err
		}
		vaultID = id
		return config.Put(ConfigVaultID, []byte(vaultID))
	})
	return vaultID, err
}

func newVaultID() (string, error) {
	b, err := crypto.GenerateRandom(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate vault ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// touch updates the last modified timestamp inside tx
func touch(tx *bolt.Tx) error {
	config := tx.Bucket(ConfigBucket)
	if config == nil {
		return nil
	}
	modified, _ := time.Now().MarshalBinary()
	return config.Put(ConfigModified, modified)
}

// PutRecord inserts or replaces an encrypted record
func (s *Bolt) PutRecord(ctx context.Context, rec StoredRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		records, err := tx.CreateBucketIfNotExists(RecordsBucket)
		if err != nil {
			return err
		}
		if err := records.Put([]byte(rec.ID), data); err != nil {
			return err
		}
		return touch(tx)
	})
}

// GetRecord retrieves one encrypted record
func (s *Bolt) GetRecord(ctx context.Context, id string) (*StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *StoredRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(RecordsBucket)
		if records == nil {
			return ErrNotFound
		}
		data := records.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		rec = &StoredRecord{}
		if err := json.Unmarshal(data, rec); err != nil {
			// An unreadable envelope is returned without nonce or tag and
			// fails authentication upstream.
			*rec = StoredRecord{}
		}
		// The bucket key is the authoritative id.
		rec.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecords returns all records, most recently modified first
func (s *Bolt) ListRecords(ctx context.Context) ([]StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []StoredRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(RecordsBucket)
		if records == nil {
			return nil
		}
		return records.ForEach(func(k, v []byte) error {
			var rec StoredRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				rec = StoredRecord{}
			}
			rec.ID = string(k)
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByModified(out)
	return out, nil
}

// DeleteRecord removes one record. Returns ErrNotFound if it does not exist.
func (s *Bolt) DeleteRecord(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(RecordsBucket)
		if records == nil || records.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		if err := records.Delete([]byte(id)); err != nil {
			return err
		}
		return touch(tx)
	})
}

// DeleteAllRecords drops every record
func (s *Bolt) DeleteAllRecords(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(RecordsBucket) != nil {
			if err := tx.DeleteBucket(RecordsBucket); err != nil {
				return fmt.Errorf("failed to delete records: %w", err)
			}
		}
		if _, err := tx.CreateBucket(RecordsBucket); err != nil {
			return err
		}
		return touch(tx)
	})
}

// Count returns the number of stored records
func (s *Bolt) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		if records := tx.Bucket(RecordsBucket); records != nil {
			n = records.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// LoadAuthState reads the AuthState document. A missing document yields
// the zero state.
func (s *Bolt) LoadAuthState(ctx context.Context) (AuthState, error) {
	if err := ctx.Err(); err != nil {
		return AuthState{}, err
	}
	var state AuthState
	err := s.db.View(func(tx *bolt.Tx) error {
		return readAuthState(tx, &state)
	})
	return state, err
}

// UpdateAuthState applies fn to the AuthState inside one write transaction.
// If fn returns an error nothing is written.
func (s *Bolt) UpdateAuthState(ctx context.Context, fn func(*AuthState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		var state AuthState
		if err := readAuthState(tx, &state); err != nil {
			return err
		}
		if err := fn(&state); err != nil {
			return err
		}
		return writeAuthState(tx, state)
	})
}

// ResetAuthState restores the default AuthState
func (s *Bolt) ResetAuthState(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return writeAuthState(tx, AuthState{})
	})
}

func readAuthState(tx *bolt.Tx, state *AuthState) error {
	auth := tx.Bucket(AuthBucket)
	if auth == nil {
		return nil
	}
	data := auth.Get(authStateKey)
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		return fmt.Errorf("failed to decode auth state: %w", err)
	}
	return nil
}

func writeAuthState(tx *bolt.Tx, state AuthState) error {
	auth, err := tx.CreateBucketIfNotExists(AuthBucket)
	if err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode auth state: %w", err)
	}
	return auth.Put(authStateKey, data)
}

// Modified returns the time of the last change to the vault contents
func (s *Bolt) Modified(ctx context.Context) (time.Time, error) {
	var modified time.Time
	if err := ctx.Err(); err != nil {
		return modified, err
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket not found")
		}
		data := config.Get(ConfigModified)
		if data == nil {
			return fmt.Errorf("modified time not found")
		}
		return modified.UnmarshalBinary(data)
	})
	return modified, err
}

// rename is replaced in tests to simulate a failing filesystem.
var rename = os.Rename

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after deleting records or a wipe to reclaim disk space.
func (s *Bolt) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// From here on the handle is closed and must be reopened on every path.
	replaceErr := replaceFile(srcPath, tmpPath)
	if replaceErr != nil {
		os.Remove(tmpPath)
	}
	if err := s.reopen(srcPath); err != nil {
		return errors.Join(replaceErr, fmt.Errorf("failed to reopen database: %w", err))
	}
	return replaceErr
}

// replaceFile swaps tmpPath into srcPath, keeping a backup until the swap
// has succeeded.
func replaceFile(srcPath, tmpPath string) error {
	backupPath := srcPath + ".backup"
	if err := rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)
	return nil
}

func (s *Bolt) reopen(path string) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return err
	}
	s.db = db
	return nil
}
