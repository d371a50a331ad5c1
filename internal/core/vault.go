package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/coder/quartz"

	"github.com/illarion/pinvault/internal/auth"
	"github.com/illarion/pinvault/internal/biometric"
	"github.com/illarion/pinvault/internal/crypto"
	"github.com/illarion/pinvault/internal/git"
	"github.com/illarion/pinvault/internal/keyring"
	"github.com/illarion/pinvault/internal/keys"
	"github.com/illarion/pinvault/internal/logging"
	"github.com/illarion/pinvault/internal/storage"
	"github.com/illarion/pinvault/internal/vaulterr"
)

// Options configures a Vault.
type Options struct {
	Path           string
	Driver         string
	KeyringService string
	ExportDir      string
	PinIterations  int
	Policy         auth.Policy
	Biometric      biometric.Prompt
	Clock          quartz.Clock
}

// Vault is the entry point to an encrypted record vault. It composes the
// key hierarchy, the lockout state machine and the session policy, and
// releases derived keys only to operations that pass the session gate.
type Vault struct {
	opts  Options
	clock quartz.Clock

	store   storage.Store
	vaultID string
	secrets *keyring.Store
	keys    *keys.Manager
	creds   *auth.Credentials
	auth    *auth.Authenticator
	session *auth.Session
}

// New creates a Vault handle. Nothing is opened until the first operation.
func New(opts Options) *Vault {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Biometric == nil {
		opts.Biometric = biometric.Unsupported{}
	}
	if opts.Driver == "" {
		opts.Driver = storage.DriverBolt
	}
	return &Vault{opts: opts, clock: opts.Clock}
}

// Close releases the record store.
func (v *Vault) Close() error {
	if v.store == nil {
		return nil
	}
	err := v.store.Close()
	v.store = nil
	return err
}

func (v *Vault) Path() string { return v.opts.Path }

// open opens an existing vault. A missing file or a store without a vault
// id is ErrNotInitialized.
func (v *Vault) open(ctx context.Context) error {
	if v.store != nil {
		return nil
	}
	if _, err := os.Stat(v.opts.Path); err != nil {
		if os.IsNotExist(err) {
			return vaulterr.ErrNotInitialized
		}
		return vaulterr.Storage("open vault", err)
	}
	store, err := storage.Open(v.opts.Driver, v.opts.Path)
	if err != nil {
		return vaulterr.Storage("open vault", err)
	}
	initialized, err := store.IsInitialized(ctx)
	if err == nil && !initialized {
		err = vaulterr.ErrNotInitialized
	}
	if err != nil {
		store.Close()
		return err
	}
	vaultID, err := store.GetVaultID(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		store.Close()
		return vaulterr.ErrNotInitialized
	}
	if err != nil {
		store.Close()
		return vaulterr.Storage("read vault id", err)
	}
	v.attach(store, vaultID)
	return nil
}

// attach wires the components for an opened store.
func (v *Vault) attach(store storage.Store, vaultID string) {
	v.store = store
	v.vaultID = vaultID
	v.secrets = keyring.New(v.opts.KeyringService, vaultID)
	v.keys = keys.NewManager(v.secrets)
	v.creds = auth.NewCredentials(v.secrets, v.opts.PinIterations)
	v.auth = auth.NewAuthenticator(v.creds, store,
		auth.WithClock(v.clock),
		auth.WithPolicy(v.opts.Policy),
		auth.WithBiometric(v.opts.Biometric),
	)
	v.session = auth.NewSession(store, v.clock, v.opts.Policy)
}

// Init creates the vault file, the master key and the PIN credential, and
// starts an unlocked session.
func (v *Vault) Init(ctx context.Context, pin string) error {
	if err := crypto.ValidatePin(pin); err != nil {
		return err
	}
	if v.store == nil {
		store, err := storage.Open(v.opts.Driver, v.opts.Path)
		if err != nil {
			return vaulterr.Storage("create vault", err)
		}
		if err := store.Initialize(ctx); err != nil {
			store.Close()
			return vaulterr.Storage("initialize vault", err)
		}
		vaultID, err := store.GetOrCreateVaultID(ctx)
		if err != nil {
			store.Close()
			return vaulterr.Storage("create vault id", err)
		}
		v.attach(store, vaultID)
	}

	set, err := v.creds.IsSet(ctx)
	if err != nil {
		return err
	}
	if set {
		return vaulterr.ErrAlreadyExists
	}

	mk, err := v.keys.EnsureMasterKey(ctx)
	if err != nil {
		return err
	}
	mk.Destroy()

	if err := v.creds.Set(ctx, pin); err != nil {
		return err
	}
	logging.Infof("initialized vault %s", v.vaultID)
	return v.session.RecordUnlock(ctx)
}

// VaultID returns the identifier that namespaces this vault's secrets.
func (v *Vault) VaultID(ctx context.Context) (string, error) {
	if err := v.open(ctx); err != nil {
		return "", err
	}
	return v.vaultID, nil
}

// UnlockWithPIN verifies pin and, on success, starts a session. A wrong PIN
// returns (false, nil).
func (v *Vault) UnlockWithPIN(ctx context.Context, pin string) (bool, error) {
	if err := v.open(ctx); err != nil {
		return false, err
	}
	return v.auth.VerifyPin(ctx, pin)
}

// UnlockWithBiometric runs the biometric prompt and, on success, starts a
// session.
func (v *Vault) UnlockWithBiometric(ctx context.Context) (bool, error) {
	if err := v.open(ctx); err != nil {
		return false, err
	}
	return v.auth.AuthenticateBiometric(ctx)
}

// Lock ends the session.
func (v *Vault) Lock(ctx context.Context) error {
	if err := v.open(ctx); err != nil {
		return err
	}
	return v.session.Lock(ctx)
}

// ChangePin replaces the PIN after verifying the current one.
func (v *Vault) ChangePin(ctx context.Context, oldPin, newPin string) error {
	if err := v.open(ctx); err != nil {
		return err
	}
	return v.auth.ChangePin(ctx, oldPin, newPin)
}

// SetAutoLockTimeout changes the session timeout. Requires an unlocked session.
func (v *Vault) SetAutoLockTimeout(ctx context.Context, d time.Duration) error {
	if err := v.requireUnlocked(ctx); err != nil {
		return err
	}
	return v.session.SetAutoLockTimeout(ctx, d)
}

// EnableBiometric turns on biometric unlock. Requires an unlocked session.
func (v *Vault) EnableBiometric(ctx context.Context) error {
	if err := v.requireUnlocked(ctx); err != nil {
		return err
	}
	return v.auth.EnableBiometric(ctx)
}

// DisableBiometric turns off biometric unlock. Requires an unlocked session.
func (v *Vault) DisableBiometric(ctx context.Context) error {
	if err := v.requireUnlocked(ctx); err != nil {
		return err
	}
	return v.auth.DisableBiometric(ctx)
}

// requireUnlocked runs a fresh auto-lock check.
func (v *Vault) requireUnlocked(ctx context.Context) error {
	if err := v.open(ctx); err != nil {
		return err
	}
	locked, err := v.session.ShouldAutoLock(ctx)
	if err != nil {
		return err
	}
	if locked {
		return vaulterr.ErrSessionLocked
	}
	return nil
}

// withKeys gates fn behind the session check and hands it freshly derived
// keys. The master key and derived keys are zeroed when fn returns.
func (v *Vault) withKeys(ctx context.Context, fn func(*crypto.DerivedKeys) error) error {
	if err := v.requireUnlocked(ctx); err != nil {
		return err
	}

	mk, err := v.keys.LoadMasterKey(ctx)
	if err != nil {
		return err
	}
	defer mk.Destroy()

	derived, err := keys.DeriveKeys(mk)
	if err != nil {
		return err
	}
	defer derived.Destroy()

	return fn(derived)
}

// FactoryWipe destroys the vault contents. Secrets go first, so an
// interrupted wipe leaves unreadable ciphertext behind. It needs neither a
// session nor the PIN, which makes it the way out of a forgotten PIN.
func (v *Vault) FactoryWipe(ctx context.Context) error {
	if err := v.open(ctx); err != nil {
		return err
	}
	if err := v.keys.Wipe(ctx); err != nil {
		return fmt.Errorf("failed to wipe master key: %w", err)
	}
	if err := v.creds.Delete(ctx); err != nil {
		return fmt.Errorf("failed to wipe pin credential: %w", err)
	}
	if err := v.store.DeleteAllRecords(ctx); err != nil {
		return vaulterr.Storage("delete records", err)
	}
	if err := v.store.ResetAuthState(ctx); err != nil {
		return vaulterr.Storage("reset auth state", err)
	}
	logging.Warnf("vault %s wiped", v.vaultID)
	return nil
}

// StatusInfo summarizes a vault without requiring a PIN.
type StatusInfo struct {
	VaultID         string
	Path            string
	Driver          string
	RecordCount     int
	Modified        time.Time
	MasterKey       bool
	Auth            auth.Status
	Unlocked        bool
	UnlockedFor     time.Duration
	AutoLockTimeout time.Duration
	Git             *git.Exposure
}

// Status reports the vault state. It never touches key material.
func (v *Vault) Status(ctx context.Context) (*StatusInfo, error) {
	if err := v.open(ctx); err != nil {
		return nil, err
	}

	count, err := v.store.Count(ctx)
	if err != nil {
		return nil, vaulterr.Storage("count records", err)
	}
	modified, err := v.store.Modified(ctx)
	if err != nil {
		return nil, vaulterr.Storage("read modified time", err)
	}
	authState, err := v.auth.State(ctx)
	if err != nil {
		return nil, err
	}
	timeout, err := v.session.Timeout(ctx)
	if err != nil {
		return nil, err
	}
	locked, err := v.session.ShouldAutoLock(ctx)
	if err != nil {
		return nil, err
	}

	info := &StatusInfo{
		VaultID:         v.vaultID,
		Path:            v.opts.Path,
		Driver:          v.store.Driver(),
		RecordCount:     count,
		Modified:        modified,
		MasterKey:       v.keys.HasMasterKey(),
		Auth:            authState,
		Unlocked:        !locked,
		AutoLockTimeout: timeout,
	}
	if !locked {
		info.UnlockedFor, _, err = v.session.UnlockedFor(ctx)
		if err != nil {
			return nil, err
		}
	}

	exposure, err := git.CheckVaultExposure(ctx, v.opts.Path)
	if err == nil && exposure.IsRepo {
		info.Git = exposure
	}
	return info, nil
}

// Compact reclaims unused space in a bolt vault. Other drivers are left
// untouched.
func (v *Vault) Compact(ctx context.Context) error {
	if err := v.open(ctx); err != nil {
		return err
	}
	b, ok := v.store.(*storage.Bolt)
	if !ok {
		logging.Debugf("compact is a no-op for driver %s", v.store.Driver())
		return nil
	}
	return b.Compact()
}
