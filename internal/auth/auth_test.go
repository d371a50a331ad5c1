package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"
	"go.uber.org/goleak"

	"github.com/illarion/pinvault/internal/biometric"
	"github.com/illarion/pinvault/internal/keyring"
	"github.com/illarion/pinvault/internal/storage"
	"github.com/illarion/pinvault/internal/vaulterr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Low iteration count keeps the tests fast; the count is carried in the
// credential so verification is unaffected.
const testIterations = 1000

type fixture struct {
	auth    *Authenticator
	session *Session
	creds   *Credentials
	store   storage.Store
	clock   *quartz.Mock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	gokeyring.MockInit()

	store, err := storage.OpenBolt(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Initialize(context.Background()))

	clock := quartz.NewMock(t)
	creds := NewCredentials(keyring.New("pinvault-test", t.Name()), testIterations)
	opts = append([]Option{WithClock(clock)}, opts...)

	return &fixture{
		auth:    NewAuthenticator(creds, store, opts...),
		session: NewSession(store, clock, DefaultPolicy()),
		creds:   creds,
		store:   store,
		clock:   clock,
	}
}

func TestCredentialsLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	set, err := f.creds.IsSet(ctx)
	require.NoError(t, err)
	assert.False(t, set)

	_, err = f.creds.Load(ctx)
	assert.ErrorIs(t, err, vaulterr.ErrNotInitialized)

	assert.ErrorIs(t, f.creds.Set(ctx, "12a456"), vaulterr.ErrInvalidFormat)
	require.NoError(t, f.creds.Set(ctx, "123456"))
	assert.ErrorIs(t, f.creds.Set(ctx, "654321"), vaulterr.ErrPinAlreadySet)

	first, err := f.creds.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testIterations, first.Iterations)

	require.NoError(t, f.creds.Replace(ctx, "654321"))
	second, err := f.creds.Load(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Salt, second.Salt)

	require.NoError(t, f.creds.Delete(ctx))
	require.NoError(t, f.creds.Delete(ctx))
	set, err = f.creds.IsSet(ctx)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestVerifyPinScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.creds.Set(ctx, "111111"))

	ok, err := f.auth.VerifyPin(ctx, "111111")
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := f.auth.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.FailedAttempts)
	assert.Equal(t, 3, st.AttemptsRemaining)

	for i := 1; i <= 3; i++ {
		ok, err := f.auth.VerifyPin(ctx, "222222")
		require.NoError(t, err)
		assert.False(t, ok)

		st, err := f.auth.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, st.FailedAttempts)
	}

	st, err = f.auth.State(ctx)
	require.NoError(t, err)
	assert.True(t, st.LockedOut)
	assert.Equal(t, 30*time.Second, st.LockoutRemaining)

	// Correct PIN is refused during the lockout
	ok, err = f.auth.VerifyPin(ctx, "111111")
	assert.False(t, ok)
	var locked *vaulterr.LockedOutError
	require.ErrorAs(t, err, &locked)
	assert.ErrorIs(t, err, vaulterr.ErrLockedOut)
	assert.Equal(t, 30*time.Second, locked.Remaining)

	f.clock.Advance(10 * time.Second)
	_, err = f.auth.VerifyPin(ctx, "222222")
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 20*time.Second, locked.Remaining)

	// A malformed PIN is rejected before the lockout is consulted
	_, err = f.auth.VerifyPin(ctx, "12")
	require.ErrorIs(t, err, vaulterr.ErrInvalidFormat)

	// Attempts during the lockout are not counted
	st, err = f.auth.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.FailedAttempts)
	assert.Equal(t, 20*time.Second, st.LockoutRemaining)

	f.clock.Advance(20 * time.Second)
	st, err = f.auth.State(ctx)
	require.NoError(t, err)
	assert.False(t, st.LockedOut)
	assert.Zero(t, st.FailedAttempts)

	ok, err = f.auth.VerifyPin(ctx, "111111")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockoutSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.creds.Set(ctx, "111111"))

	for i := 0; i < 3; i++ {
		_, err := f.auth.VerifyPin(ctx, "999999")
		require.NoError(t, err)
	}

	restarted := NewAuthenticator(f.creds, f.store, WithClock(f.clock))
	_, err := restarted.VerifyPin(ctx, "111111")
	assert.ErrorIs(t, err, vaulterr.ErrLockedOut)
}

func TestSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.creds.Set(ctx, "111111"))

	for i := 0; i < 2; i++ {
		_, err := f.auth.VerifyPin(ctx, "000000")
		require.NoError(t, err)
	}
	ok, err := f.auth.VerifyPin(ctx, "111111")
	require.NoError(t, err)
	require.True(t, ok)

	state, err := f.store.LoadAuthState(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.FailedAttempts)
	assert.Nil(t, state.LockoutUntil)
	require.NotNil(t, state.LastUnlockAt)
	assert.True(t, state.LastUnlockAt.Equal(f.clock.Now()))
}

func TestVerifyPinInvalidFormat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.creds.Set(ctx, "111111"))

	for _, pin := range []string{"", "12345", "1234567", "abcdef", "12 456"} {
		_, err := f.auth.VerifyPin(ctx, pin)
		assert.ErrorIs(t, err, vaulterr.ErrInvalidFormat, pin)
	}

	st, err := f.auth.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.FailedAttempts)
}

func TestVerifyPinNotInitialized(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.VerifyPin(context.Background(), "111111")
	assert.ErrorIs(t, err, vaulterr.ErrNotInitialized)
}

func TestConcurrentFailuresDoNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.creds.Set(ctx, "111111"))

	const attempts = 10
	var (
		wg               sync.WaitGroup
		mu               sync.Mutex
		failed, rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.auth.VerifyPin(ctx, "222222")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, vaulterr.ErrLockedOut):
				rejected++
			case err == nil && !ok:
				failed++
			default:
				t.Errorf("unexpected result: ok=%v err=%v", ok, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, failed)
	assert.Equal(t, attempts-3, rejected)

	st, err := f.auth.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.FailedAttempts)
	assert.True(t, st.LockedOut)
}

func TestChangePin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.creds.Set(ctx, "111111"))

	assert.ErrorIs(t, f.auth.ChangePin(ctx, "000000", "222222"), ErrWrongPin)
	assert.ErrorIs(t, f.auth.ChangePin(ctx, "111111", "22"), vaulterr.ErrInvalidFormat)

	assert.ErrorIs(t, f.auth.ChangePin(ctx, "1", "222222"), vaulterr.ErrInvalidFormat)

	// Only the wrong old PIN was counted
	st, err := f.auth.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.FailedAttempts)

	require.NoError(t, f.auth.ChangePin(ctx, "111111", "222222"))

	// A successful change resets the counter without starting a session
	st, err = f.auth.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.FailedAttempts)
	locked, err := f.session.ShouldAutoLock(ctx)
	require.NoError(t, err)
	assert.True(t, locked)

	ok, err := f.auth.VerifyPin(ctx, "111111")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.auth.VerifyPin(ctx, "222222")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockoutConsumesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.creds.Set(ctx, "111111"))
	for i := 0; i < 3; i++ {
		_, err := f.auth.VerifyPin(ctx, "000000")
		require.NoError(t, err)
	}
	f.clock.Advance(5 * time.Second)

	before, err := f.store.LoadAuthState(ctx)
	require.NoError(t, err)
	require.NotNil(t, before.LockoutUntil)

	tests := []struct {
		name    string
		attempt func() error
		want    error
	}{
		{"malformed pin", func() error {
			_, err := f.auth.VerifyPin(ctx, "abc")
			return err
		}, vaulterr.ErrInvalidFormat},
		{"wrong pin", func() error {
			_, err := f.auth.VerifyPin(ctx, "000000")
			return err
		}, vaulterr.ErrLockedOut},
		{"correct pin", func() error {
			_, err := f.auth.VerifyPin(ctx, "111111")
			return err
		}, vaulterr.ErrLockedOut},
		{"change with wrong old pin", func() error {
			return f.auth.ChangePin(ctx, "000000", "222222")
		}, vaulterr.ErrLockedOut},
		{"change with correct old pin", func() error {
			return f.auth.ChangePin(ctx, "111111", "222222")
		}, vaulterr.ErrLockedOut},
		{"change with malformed old pin", func() error {
			return f.auth.ChangePin(ctx, "1", "222222")
		}, vaulterr.ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.attempt()
			require.ErrorIs(t, err, tt.want)
			if errors.Is(tt.want, vaulterr.ErrLockedOut) {
				var locked *vaulterr.LockedOutError
				require.ErrorAs(t, err, &locked)
				assert.Equal(t, 25*time.Second, locked.Remaining)
			}

			after, err := f.store.LoadAuthState(ctx)
			require.NoError(t, err)
			assert.Equal(t, before.FailedAttempts, after.FailedAttempts)
			assert.True(t, before.LockoutUntil.Equal(*after.LockoutUntil))
			assert.Nil(t, after.LastUnlockAt)
		})
	}

	// The old PIN still works once the lockout ends
	f.clock.Advance(25 * time.Second)
	ok, err := f.auth.VerifyPin(ctx, "111111")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCustomPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithPolicy(Policy{MaxFailedAttempts: 5, LockoutDuration: time.Minute}))
	require.NoError(t, f.creds.Set(ctx, "111111"))

	for i := 0; i < 4; i++ {
		_, err := f.auth.VerifyPin(ctx, "000000")
		require.NoError(t, err)
	}
	st, err := f.auth.State(ctx)
	require.NoError(t, err)
	assert.False(t, st.LockedOut)
	assert.Equal(t, 1, st.AttemptsRemaining)

	_, err = f.auth.VerifyPin(ctx, "000000")
	require.NoError(t, err)
	st, err = f.auth.State(ctx)
	require.NoError(t, err)
	assert.True(t, st.LockedOut)
	assert.Equal(t, time.Minute, st.LockoutRemaining)
	assert.Equal(t, DefaultAutoLockTimeout, f.auth.Policy().DefaultAutoLockTimeout)
}

func TestBiometric(t *testing.T) {
	ctx := context.Background()

	var result error
	prompt := biometric.Func(func(context.Context, string) error { return result })
	f := newFixture(t, WithBiometric(prompt))
	require.NoError(t, f.creds.Set(ctx, "111111"))

	_, err := f.auth.AuthenticateBiometric(ctx)
	assert.ErrorIs(t, err, vaulterr.ErrBiometricUnavailable)

	require.NoError(t, f.auth.EnableBiometric(ctx))

	// Cancel changes nothing
	result = biometric.ErrCancelled
	ok, err := f.auth.AuthenticateBiometric(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, biometric.ErrCancelled)
	st, err := f.auth.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.FailedAttempts)

	// Rejection counts
	result = biometric.ErrRejected
	ok, err = f.auth.AuthenticateBiometric(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	st, err = f.auth.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.FailedAttempts)

	// Success resets and unlocks
	result = nil
	ok, err = f.auth.AuthenticateBiometric(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	st, err = f.auth.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.FailedAttempts)
	assert.True(t, st.BiometricEnabled)
	assert.True(t, st.BiometricAvailable)

	shouldLock, err := f.session.ShouldAutoLock(ctx)
	require.NoError(t, err)
	assert.False(t, shouldLock)

	require.NoError(t, f.auth.DisableBiometric(ctx))
	_, err = f.auth.AuthenticateBiometric(ctx)
	assert.ErrorIs(t, err, vaulterr.ErrBiometricUnavailable)
}

func TestBiometricContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, WithBiometric(biometric.Func(func(context.Context, string) error {
		cancel()
		return ctx.Err()
	})))
	require.NoError(t, f.auth.EnableBiometric(context.Background()))

	ok, err := f.auth.AuthenticateBiometric(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)

	st, err := f.auth.State(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.FailedAttempts)
}

func TestEnableBiometricUnsupported(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.auth.EnableBiometric(context.Background()), vaulterr.ErrBiometricUnavailable)
}

func TestBiometricDuringLockout(t *testing.T) {
	ctx := context.Background()
	called := false
	f := newFixture(t, WithBiometric(biometric.Func(func(context.Context, string) error {
		called = true
		return nil
	})))
	require.NoError(t, f.creds.Set(ctx, "111111"))
	require.NoError(t, f.auth.EnableBiometric(ctx))

	for i := 0; i < 3; i++ {
		_, err := f.auth.VerifyPin(ctx, "000000")
		require.NoError(t, err)
	}

	_, err := f.auth.AuthenticateBiometric(ctx)
	assert.ErrorIs(t, err, vaulterr.ErrLockedOut)
	assert.False(t, called)
}
