package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id         TEXT    PRIMARY KEY,
	ciphertext BLOB    NOT NULL,
	nonce      BLOB    NOT NULL,
	tag        BLOB    NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at);

CREATE TABLE IF NOT EXISTS auth_state (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	data TEXT    NOT NULL
);
`

// SQLite provides SQLite-based storage for pinvault
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates a pinvault SQLite database
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers the same way a bolt file lock does.
	handle.SetMaxOpenConns(1)

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
			handle.Close()
			return nil, fmt.Errorf("failed to chmod database: %w", err)
		}
	}

	return &SQLite{db: handle, path: path}, nil
}

func (s *SQLite) Driver() string { return DriverSQLite }

func (s *SQLite) Path() string { return s.path }

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Initialize creates the schema and records the schema version
func (s *SQLite) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO config (key, value) VALUES ('version', ?), ('created', ?), ('modified', ?)`,
		schemaVersion, now, now)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// IsInitialized checks if the schema exists and carries a version
func (s *SQLite) IsInitialized(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'config'`).Scan(&n)
	if err != nil || n == 0 {
		return false, err
	}
	var version string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = 'version'`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// GetVaultID retrieves the vault ID
func (s *SQLite) GetVaultID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = 'vault_id'`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// GetOrCreateVaultID retrieves existing vault ID or generates a new one
func (s *SQLite) GetOrCreateVaultID(ctx context.Context) (string, error) {
	id, err := newVaultID()
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO config (key, value) VALUES ('vault_id', ?)`, id); err != nil {
		return "", fmt.Errorf("failed to store vault ID: %w", err)
	}
	return s.GetVaultID(ctx)
}

func (s *SQLite) touch(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO config (key, value) VALUES ('modified', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.FormatInt(time.Now().UnixNano(), 10))
	return err
}

// PutRecord inserts or replaces an encrypted record
func (s *SQLite) PutRecord(ctx context.Context, rec StoredRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, ciphertext, nonce, tag, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			tag = excluded.tag,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Ciphertext, rec.Nonce, rec.Tag,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return s.touch(ctx, s.db)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (StoredRecord, error) {
	var (
		rec              StoredRecord
		created, updated int64
	)
	if err := row.Scan(&rec.ID, &rec.Ciphertext, &rec.Nonce, &rec.Tag, &created, &updated); err != nil {
		return rec, err
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return rec, nil
}

// GetRecord retrieves one encrypted record
func (s *SQLite) GetRecord(ctx context.Context, id string) (*StoredRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ciphertext, nonce, tag, created_at, updated_at FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return &rec, nil
}

// ListRecords returns all records, most recently modified first
func (s *SQLite) ListRecords(ctx context.Context) ([]StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ciphertext, nonce, tag, created_at, updated_at FROM records
		 ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			if rec.ID == "" {
				return nil, fmt.Errorf("failed to read record: %w", err)
			}
			// Keep the id so the row is reported as unreadable, not lost.
			rec = StoredRecord{ID: rec.ID}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteRecord removes one record. Returns ErrNotFound if it does not exist.
func (s *SQLite) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return s.touch(ctx, s.db)
}

// DeleteAllRecords drops every record
func (s *SQLite) DeleteAllRecords(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return s.touch(ctx, s.db)
}

// Count returns the number of stored records
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

// Modified returns the time of the last change to the vault contents
func (s *SQLite) Modified(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = 'modified'`).Scan(&value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read modified time: %w", err)
	}
	ns, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse modified time: %w", err)
	}
	return time.Unix(0, ns).UTC(), nil
}

// LoadAuthState reads the AuthState document. A missing row yields the
// zero state.
func (s *SQLite) LoadAuthState(ctx context.Context) (AuthState, error) {
	var state AuthState
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM auth_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read auth state: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return state, fmt.Errorf("failed to decode auth state: %w", err)
	}
	return state, nil
}

// UpdateAuthState applies fn to the AuthState inside one transaction.
// If fn returns an error nothing is written.
func (s *SQLite) UpdateAuthState(ctx context.Context, fn func(*AuthState) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var state AuthState
	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM auth_state WHERE id = 1`).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read auth state: %w", err)
	default:
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			return fmt.Errorf("failed to decode auth state: %w", err)
		}
	}

	if err := fn(&state); err != nil {
		return err
	}
	if err := writeAuthStateSQL(ctx, tx, state); err != nil {
		return err
	}
	return tx.Commit()
}

// ResetAuthState restores the default AuthState
func (s *SQLite) ResetAuthState(ctx context.Context) error {
	return writeAuthStateSQL(ctx, s.db, AuthState{})
}

func writeAuthStateSQL(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, state AuthState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode auth state: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO auth_state (id, data) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(data))
	if err != nil {
		return fmt.Errorf("failed to write auth state: %w", err)
	}
	return nil
}
