package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	return tmp
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	c, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, "bolt", c.Vault.Driver)
	assert.Equal(t, "pinvault", c.Keyring.Service)
	assert.Equal(t, 3, c.Auth.MaxFailedAttempts)
	assert.Equal(t, 30*time.Second, c.Auth.LockoutDuration)
	assert.Equal(t, 5*time.Minute, c.Auth.AutoLockTimeout)
	assert.Equal(t, 100000, c.Crypto.PinIterations)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, "vault.db", filepath.Base(c.Vault.Path))

	p := c.Policy()
	assert.Equal(t, 3, p.MaxFailedAttempts)
	assert.Equal(t, 5*time.Minute, p.DefaultAutoLockTimeout)
}

func TestLoadExplicitFile(t *testing.T) {
	tmp := isolate(t)
	file := filepath.Join(tmp, "custom.yaml")
	content := "vault:\n  driver: sqlite\n  path: /tmp/v.db\nauth:\n  lockout_duration: 1m\n  max_failed_attempts: 5\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0600))

	c, err := Load(nil, file)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Vault.Driver)
	assert.Equal(t, "/tmp/v.db", c.Vault.Path)
	assert.Equal(t, time.Minute, c.Auth.LockoutDuration)
	assert.Equal(t, 5, c.Auth.MaxFailedAttempts)
	// Untouched keys keep their defaults
	assert.Equal(t, 5*time.Minute, c.Auth.AutoLockTimeout)
}

func TestLoadMalformedFile(t *testing.T) {
	tmp := isolate(t)
	file := filepath.Join(tmp, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("vault: [unterminated"), 0600))

	_, err := Load(nil, file)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	tmp := isolate(t)
	file := filepath.Join(tmp, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("auth:\n  auto_lock_timeout: 10m\n"), 0600))
	t.Setenv("PINVAULT_AUTH_AUTO_LOCK_TIMEOUT", "90s")
	t.Setenv("PINVAULT_LOG_LEVEL", "debug")

	c, err := Load(nil, file)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, c.Auth.AutoLockTimeout)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestFlagsOverrideEnv(t *testing.T) {
	isolate(t)
	t.Setenv("PINVAULT_VAULT_DRIVER", "bolt")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("driver", "", "")
	flags.String("vault", "", "")
	require.NoError(t, flags.Parse([]string{"--driver", "sqlite", "--vault", "/tmp/x.db"}))

	c, err := Load(flags, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Vault.Driver)
	assert.Equal(t, "/tmp/x.db", c.Vault.Path)
}

func TestValidate(t *testing.T) {
	isolate(t)
	t.Setenv("PINVAULT_VAULT_DRIVER", "postgres")
	t.Setenv("PINVAULT_CRYPTO_PIN_ITERATIONS", "10")

	_, err := Load(nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault.driver")
	assert.Contains(t, err.Error(), "crypto.pin_iterations")
}

func TestWriteConfigFileRoundTrip(t *testing.T) {
	isolate(t)

	c, err := Load(nil, "")
	require.NoError(t, err)
	c.Vault.Driver = "sqlite"
	c.Auth.AutoLockTimeout = 2 * time.Minute

	path, err := WriteConfigFile(c, "")
	require.NoError(t, err)
	expected, err := GetConfigPath()
	require.NoError(t, err)
	assert.Equal(t, expected, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2m0s")

	// Picked up from the default location
	loaded, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.Vault.Driver)
	assert.Equal(t, 2*time.Minute, loaded.Auth.AutoLockTimeout)
}
