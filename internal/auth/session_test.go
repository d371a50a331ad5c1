package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/pinvault/internal/storage"
	"github.com/illarion/pinvault/internal/vaulterr"
)

func TestShouldAutoLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Never unlocked
	locked, err := f.session.ShouldAutoLock(ctx)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, f.session.SetAutoLockTimeout(ctx, 1000*time.Millisecond))
	require.NoError(t, f.session.RecordUnlock(ctx))

	locked, err = f.session.ShouldAutoLock(ctx)
	require.NoError(t, err)
	assert.False(t, locked)

	f.clock.Advance(1000 * time.Millisecond)
	locked, err = f.session.ShouldAutoLock(ctx)
	require.NoError(t, err)
	assert.False(t, locked, "exactly at the timeout is still unlocked")

	f.clock.Advance(100 * time.Millisecond)
	locked, err = f.session.ShouldAutoLock(ctx)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestShouldAutoLockDefaultTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	timeout, err := f.session.Timeout(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultAutoLockTimeout, timeout)

	require.NoError(t, f.session.RecordUnlock(ctx))
	f.clock.Advance(4 * time.Minute)
	locked, err := f.session.ShouldAutoLock(ctx)
	require.NoError(t, err)
	assert.False(t, locked)

	since, ok, err := f.session.UnlockedFor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4*time.Minute, since)

	f.clock.Advance(time.Minute + time.Millisecond)
	locked, err = f.session.ShouldAutoLock(ctx)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestSessionLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.session.RecordUnlock(ctx))
	require.NoError(t, f.session.Lock(ctx))

	locked, err := f.session.ShouldAutoLock(ctx)
	require.NoError(t, err)
	assert.True(t, locked)

	_, ok, err := f.session.UnlockedFor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetAutoLockTimeoutRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.session.SetAutoLockTimeout(context.Background(), 0), vaulterr.ErrInvalidFormat)
	assert.ErrorIs(t, f.session.SetAutoLockTimeout(context.Background(), -time.Second), vaulterr.ErrInvalidFormat)
}

type brokenStates struct{}

func (brokenStates) LoadAuthState(context.Context) (storage.AuthState, error) {
	return storage.AuthState{}, errors.New("disk on fire")
}

func (brokenStates) UpdateAuthState(context.Context, func(*storage.AuthState) error) error {
	return errors.New("disk on fire")
}

func TestShouldAutoLockFailsClosed(t *testing.T) {
	s := NewSession(brokenStates{}, quartz.NewMock(t), DefaultPolicy())

	locked, err := s.ShouldAutoLock(context.Background())
	assert.True(t, locked)
	assert.True(t, vaulterr.IsStorage(err))

	assert.True(t, vaulterr.IsStorage(s.RecordUnlock(context.Background())))
}
