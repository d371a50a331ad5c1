package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Store is the record store and its companion metadata area.
type Store interface {
	Driver() string
	Path() string
	Close() error

	Initialize(ctx context.Context) error
	IsInitialized(ctx context.Context) (bool, error)
	GetVaultID(ctx context.Context) (string, error)
	GetOrCreateVaultID(ctx context.Context) (string, error)

	PutRecord(ctx context.Context, rec StoredRecord) error
	GetRecord(ctx context.Context, id string) (*StoredRecord, error)
	ListRecords(ctx context.Context) ([]StoredRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	DeleteAllRecords(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Modified(ctx context.Context) (time.Time, error)

	LoadAuthState(ctx context.Context) (AuthState, error)
	UpdateAuthState(ctx context.Context, fn func(*AuthState) error) error
	ResetAuthState(ctx context.Context) error
}

// Open opens the store at path with the named driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", DriverBolt:
		return OpenBolt(path)
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
