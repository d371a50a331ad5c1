package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illarion/pinvault/internal/vaulterr"
)

func TestPinLifecycle(t *testing.T) {
	t.Parallel()

	cred, err := HashPin("123456")
	require.NoError(t, err)
	require.Len(t, cred.Salt, PinSaltSize)
	require.Len(t, cred.Hash, PinHashSize)
	require.Equal(t, DefaultPinIters, cred.Iterations)

	ok, err := VerifyPin("123456", cred)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyPin("000000", cred)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashPinFreshSalt(t *testing.T) {
	t.Parallel()

	a, err := HashPinWithIterations("111111", 1000)
	require.NoError(t, err)
	b, err := HashPinWithIterations("111111", 1000)
	require.NoError(t, err)

	require.NotEqual(t, a.Salt, b.Salt)
	require.NotEqual(t, a.Hash, b.Hash)
}

func TestHashPinInvalidFormat(t *testing.T) {
	t.Parallel()

	for _, pin := range []string{"", "12345", "1234567", "12345a", " 12345", "１２３４５６", "12-456"} {
		_, err := HashPin(pin)
		require.ErrorIs(t, err, vaulterr.ErrInvalidFormat, "pin %q", pin)
	}
}

func TestVerifyPinInvalidInput(t *testing.T) {
	t.Parallel()

	cred, err := HashPinWithIterations("654321", 1000)
	require.NoError(t, err)

	_, err = VerifyPin("65432", cred)
	require.ErrorIs(t, err, vaulterr.ErrInvalidFormat)

	_, err = VerifyPin("654321", &PinCredential{})
	require.ErrorIs(t, err, vaulterr.ErrInvalidFormat)
}

func TestVerifyPinUsesStoredIterations(t *testing.T) {
	t.Parallel()

	cred, err := HashPinWithIterations("246810", 2000)
	require.NoError(t, err)

	ok, err := VerifyPin("246810", cred)
	require.NoError(t, err)
	require.True(t, ok)

	cred.Iterations = 2001
	ok, err = VerifyPin("246810", cred)
	require.NoError(t, err)
	require.False(t, ok)
}
