package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/illarion/pinvault/internal/auth"
	"github.com/illarion/pinvault/internal/keyring"
	"github.com/illarion/pinvault/internal/keys"
	"github.com/illarion/pinvault/internal/storage"
	"github.com/illarion/pinvault/internal/vaulterr"
)

const testPin = "123456"

func newTestVault(t *testing.T, driver string) (*Vault, *quartz.Mock) {
	t.Helper()
	gokeyring.MockInit()

	dir := t.TempDir()
	clock := quartz.NewMock(t)
	v := New(Options{
		Path:           filepath.Join(dir, "vault.db"),
		Driver:         driver,
		KeyringService: "pinvault-test",
		ExportDir:      filepath.Join(dir, "exports"),
		PinIterations:  1000,
		Clock:          clock,
	})
	t.Cleanup(func() { v.Close() })
	return v, clock
}

func initTestVault(t *testing.T, driver string) (*Vault, *quartz.Mock) {
	t.Helper()
	v, clock := newTestVault(t, driver)
	if err := v.Init(context.Background(), testPin); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return v, clock
}

func TestInit(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t, storage.DriverBolt)

	if err := v.Init(ctx, "12345"); !errors.Is(err, vaulterr.ErrInvalidFormat) {
		t.Fatalf("Expected ErrInvalidFormat for short pin, got %v", err)
	}
	if err := v.Init(ctx, testPin); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := v.Init(ctx, testPin); !errors.Is(err, vaulterr.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	id, err := v.VaultID(ctx)
	if err != nil {
		t.Fatalf("VaultID failed: %v", err)
	}
	if len(id) != 32 {
		t.Errorf("Unexpected vault id %q", id)
	}

	// Init leaves an unlocked session
	if _, err := v.ListRecords(ctx); err != nil {
		t.Errorf("Expected unlocked session after init, got %v", err)
	}
}

func TestNotInitialized(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t, storage.DriverBolt)

	if _, err := v.Status(ctx); !errors.Is(err, vaulterr.ErrNotInitialized) {
		t.Errorf("Status: expected ErrNotInitialized, got %v", err)
	}
	if _, err := v.UnlockWithPIN(ctx, testPin); !errors.Is(err, vaulterr.ErrNotInitialized) {
		t.Errorf("Unlock: expected ErrNotInitialized, got %v", err)
	}
	if _, err := v.ListRecords(ctx); !errors.Is(err, vaulterr.ErrNotInitialized) {
		t.Errorf("List: expected ErrNotInitialized, got %v", err)
	}
}

func TestReopenVault(t *testing.T) {
	ctx := context.Background()
	v, clock := initTestVault(t, storage.DriverBolt)
	added, err := v.AddRecord(ctx, Record{Name: "Editor", Vendor: "Acme", LicenseKey: "AAAA"})
	if err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := New(Options{
		Path:           v.Path(),
		KeyringService: "pinvault-test",
		PinIterations:  1000,
		Clock:          clock,
	})
	defer reopened.Close()

	got, err := reopened.GetRecord(ctx, added.ID)
	if err != nil {
		t.Fatalf("GetRecord after reopen failed: %v", err)
	}
	if got.LicenseKey != "AAAA" {
		t.Errorf("License key mismatch: %q", got.LicenseKey)
	}
}

func TestUnlockAndLockout(t *testing.T) {
	ctx := context.Background()
	v, clock := initTestVault(t, storage.DriverBolt)

	if err := v.Lock(ctx); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := v.UnlockWithPIN(ctx, "000000")
		if err != nil || ok {
			t.Fatalf("Wrong pin attempt %d: ok=%v err=%v", i, ok, err)
		}
	}

	_, err := v.UnlockWithPIN(ctx, testPin)
	var locked *vaulterr.LockedOutError
	if !errors.As(err, &locked) {
		t.Fatalf("Expected LockedOutError, got %v", err)
	}
	if locked.Remaining != 30*time.Second {
		t.Errorf("Expected 30s remaining, got %v", locked.Remaining)
	}

	clock.Advance(30 * time.Second)
	ok, err := v.UnlockWithPIN(ctx, testPin)
	if err != nil || !ok {
		t.Fatalf("Unlock after lockout: ok=%v err=%v", ok, err)
	}
}

func TestSessionGate(t *testing.T) {
	ctx := context.Background()
	v, clock := initTestVault(t, storage.DriverBolt)

	rec, err := v.AddRecord(ctx, Record{Name: "Game", Category: CategoryGame})
	if err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}

	if err := v.Lock(ctx); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if _, err := v.GetRecord(ctx, rec.ID); !errors.Is(err, vaulterr.ErrSessionLocked) {
		t.Errorf("GetRecord while locked: expected ErrSessionLocked, got %v", err)
	}
	if _, err := v.AddRecord(ctx, Record{Name: "x"}); !errors.Is(err, vaulterr.ErrSessionLocked) {
		t.Errorf("AddRecord while locked: expected ErrSessionLocked, got %v", err)
	}
	if err := v.DeleteRecord(ctx, rec.ID); !errors.Is(err, vaulterr.ErrSessionLocked) {
		t.Errorf("DeleteRecord while locked: expected ErrSessionLocked, got %v", err)
	}
	if err := v.SetAutoLockTimeout(ctx, time.Second); !errors.Is(err, vaulterr.ErrSessionLocked) {
		t.Errorf("SetAutoLockTimeout while locked: expected ErrSessionLocked, got %v", err)
	}

	if ok, err := v.UnlockWithPIN(ctx, testPin); err != nil || !ok {
		t.Fatalf("Unlock failed: ok=%v err=%v", ok, err)
	}
	if err := v.SetAutoLockTimeout(ctx, time.Minute); err != nil {
		t.Fatalf("SetAutoLockTimeout failed: %v", err)
	}
	if _, err := v.GetRecord(ctx, rec.ID); err != nil {
		t.Errorf("GetRecord while unlocked failed: %v", err)
	}

	// Auto-lock kicks in without any explicit lock
	clock.Advance(time.Minute + time.Millisecond)
	if _, err := v.GetRecord(ctx, rec.ID); !errors.Is(err, vaulterr.ErrSessionLocked) {
		t.Errorf("GetRecord after timeout: expected ErrSessionLocked, got %v", err)
	}
}

func TestChangePin(t *testing.T) {
	ctx := context.Background()
	v, _ := initTestVault(t, storage.DriverSQLite)

	if err := v.ChangePin(ctx, "999999", "654321"); !errors.Is(err, auth.ErrWrongPin) {
		t.Errorf("Expected ErrWrongPin, got %v", err)
	}
	if err := v.ChangePin(ctx, testPin, "654321"); err != nil {
		t.Fatalf("ChangePin failed: %v", err)
	}
	if ok, err := v.UnlockWithPIN(ctx, "654321"); err != nil || !ok {
		t.Errorf("Unlock with new pin: ok=%v err=%v", ok, err)
	}
}

type recordingSecrets struct {
	*keyring.Store
	log *[]string
}

func (r *recordingSecrets) Delete(key string) error {
	*r.log = append(*r.log, key)
	return r.Store.Delete(key)
}

type recordingStore struct {
	storage.Store
	log *[]string
}

func (r *recordingStore) DeleteAllRecords(ctx context.Context) error {
	*r.log = append(*r.log, "records")
	return r.Store.DeleteAllRecords(ctx)
}

func (r *recordingStore) ResetAuthState(ctx context.Context) error {
	*r.log = append(*r.log, "auth_state")
	return r.Store.ResetAuthState(ctx)
}

func TestFactoryWipe(t *testing.T) {
	ctx := context.Background()
	v, _ := initTestVault(t, storage.DriverBolt)

	for _, name := range []string{"a", "b"} {
		if _, err := v.AddRecord(ctx, Record{Name: name}); err != nil {
			t.Fatalf("AddRecord failed: %v", err)
		}
	}
	if err := v.SetAutoLockTimeout(ctx, time.Hour); err != nil {
		t.Fatalf("SetAutoLockTimeout failed: %v", err)
	}

	var log []string
	secrets := &recordingSecrets{Store: v.secrets, log: &log}
	v.keys = keys.NewManager(secrets)
	v.creds = auth.NewCredentials(secrets, 1000)
	v.store = &recordingStore{Store: v.store, log: &log}

	if err := v.FactoryWipe(ctx); err != nil {
		t.Fatalf("FactoryWipe failed: %v", err)
	}

	want := []string{keys.MasterKeyName, auth.PinCredentialName, "records", "auth_state"}
	if len(log) != len(want) {
		t.Fatalf("Wipe steps = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("Wipe step %d = %s, want %s", i, log[i], want[i])
		}
	}

	if _, err := v.keys.LoadMasterKey(ctx); !errors.Is(err, vaulterr.ErrNotInitialized) {
		t.Errorf("Master key survived wipe: %v", err)
	}
	if set, _ := v.creds.IsSet(ctx); set {
		t.Error("PIN credential survived wipe")
	}
	if v.keys.HasMasterKey() {
		t.Error("Master key still reported after wipe")
	}
	if n, _ := v.store.Count(ctx); n != 0 {
		t.Errorf("Expected 0 records after wipe, got %d", n)
	}
	state, err := v.store.LoadAuthState(ctx)
	if err != nil {
		t.Fatalf("LoadAuthState failed: %v", err)
	}
	if state != (storage.AuthState{}) {
		t.Errorf("AuthState not reset: %+v", state)
	}

	// The vault can be set up again
	if err := v.Init(ctx, "111111"); err != nil {
		t.Errorf("Init after wipe failed: %v", err)
	}
}

func TestFactoryWipeLockedVault(t *testing.T) {
	ctx := context.Background()
	v, clock := initTestVault(t, storage.DriverBolt)
	if _, err := v.AddRecord(ctx, Record{Name: "forgotten"}); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	if err := v.Lock(ctx); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := v.UnlockWithPIN(ctx, "000000"); err != nil {
			t.Fatalf("UnlockWithPIN failed: %v", err)
		}
	}
	clock.Advance(time.Second)

	// A forgotten PIN during a lockout can still be recovered from by a reset
	if err := v.FactoryWipe(ctx); err != nil {
		t.Fatalf("FactoryWipe on locked vault failed: %v", err)
	}
	if n, _ := v.store.Count(ctx); n != 0 {
		t.Errorf("Expected 0 records after wipe, got %d", n)
	}
	if err := v.Init(ctx, "111111"); err != nil {
		t.Fatalf("Init after wipe failed: %v", err)
	}
	if ok, err := v.UnlockWithPIN(ctx, "111111"); err != nil || !ok {
		t.Errorf("Unlock after reset: ok=%v err=%v", ok, err)
	}
}

func TestFactoryWipeStopsOnSecretFailure(t *testing.T) {
	ctx := context.Background()
	v, _ := initTestVault(t, storage.DriverBolt)
	if _, err := v.AddRecord(ctx, Record{Name: "keep"}); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}

	gokeyring.MockInitWithError(errors.New("keyring unavailable"))
	if err := v.FactoryWipe(ctx); !vaulterr.IsStorage(err) {
		t.Fatalf("Expected storage error, got %v", err)
	}

	// Records are untouched when the secrets could not be removed
	if n, _ := v.store.Count(ctx); n != 1 {
		t.Errorf("Expected record to survive aborted wipe, got %d", n)
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	v, clock := initTestVault(t, storage.DriverSQLite)
	if _, err := v.AddRecord(ctx, Record{Name: "one"}); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	clock.Advance(time.Minute)

	info, err := v.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if info.RecordCount != 1 {
		t.Errorf("RecordCount = %d", info.RecordCount)
	}
	if info.Driver != storage.DriverSQLite {
		t.Errorf("Driver = %s", info.Driver)
	}
	if !info.Unlocked || info.UnlockedFor != time.Minute {
		t.Errorf("Unexpected session: unlocked=%v for=%v", info.Unlocked, info.UnlockedFor)
	}
	if info.AutoLockTimeout != auth.DefaultAutoLockTimeout {
		t.Errorf("AutoLockTimeout = %v", info.AutoLockTimeout)
	}
	if !info.Auth.PinSet || info.Auth.LockedOut {
		t.Errorf("Unexpected auth status: %+v", info.Auth)
	}
	if !info.MasterKey {
		t.Error("Expected master key to be reported present")
	}
	if info.Modified.IsZero() {
		t.Error("Expected a modified time")
	}

	if err := v.Lock(ctx); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	info, err = v.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if info.Unlocked {
		t.Error("Expected locked session")
	}
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{storage.DriverBolt, storage.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			v, _ := initTestVault(t, driver)
			rec, err := v.AddRecord(ctx, Record{Name: "survivor"})
			if err != nil {
				t.Fatalf("AddRecord failed: %v", err)
			}
			if err := v.Compact(ctx); err != nil {
				t.Fatalf("Compact failed: %v", err)
			}
			if _, err := v.GetRecord(ctx, rec.ID); err != nil {
				t.Errorf("Record lost after compact: %v", err)
			}
		})
	}
}
