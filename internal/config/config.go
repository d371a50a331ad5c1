// Package config loads pinvault settings from defaults, a YAML file,
// PINVAULT_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/illarion/pinvault/internal/auth"
	"github.com/illarion/pinvault/internal/crypto"
	"github.com/illarion/pinvault/internal/keyring"
	"github.com/illarion/pinvault/internal/storage"
)

const (
	configName = "pinvault"
	envPrefix  = "pinvault"

	// MinPinIterations is the lowest accepted PBKDF2 iteration count.
	MinPinIterations = 10000
)

// Config is the complete pinvault configuration.
type Config struct {
	Vault struct {
		Path   string `mapstructure:"path"`
		Driver string `mapstructure:"driver"`
	} `mapstructure:"vault"`
	Keyring struct {
		Service string `mapstructure:"service"`
	} `mapstructure:"keyring"`
	Auth struct {
		MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
		LockoutDuration   time.Duration `mapstructure:"lockout_duration"`
		AutoLockTimeout   time.Duration `mapstructure:"auto_lock_timeout"`
	} `mapstructure:"auth"`
	Crypto struct {
		PinIterations int `mapstructure:"pin_iterations"`
	} `mapstructure:"crypto"`
	Export struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"export"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Policy returns the authentication policy described by c.
func (c *Config) Policy() auth.Policy {
	return auth.Policy{
		MaxFailedAttempts:      c.Auth.MaxFailedAttempts,
		LockoutDuration:        c.Auth.LockoutDuration,
		DefaultAutoLockTimeout: c.Auth.AutoLockTimeout,
	}
}

// Validate checks values that would otherwise fail deep inside an operation.
func (c *Config) Validate() error {
	var errs []error
	if c.Vault.Path == "" {
		errs = append(errs, errors.New("vault.path must not be empty"))
	}
	switch c.Vault.Driver {
	case storage.DriverBolt, storage.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("vault.driver must be %q or %q, got %q",
			storage.DriverBolt, storage.DriverSQLite, c.Vault.Driver))
	}
	if c.Auth.MaxFailedAttempts <= 0 {
		errs = append(errs, errors.New("auth.max_failed_attempts must be positive"))
	}
	if c.Auth.LockoutDuration <= 0 {
		errs = append(errs, errors.New("auth.lockout_duration must be positive"))
	}
	if c.Auth.AutoLockTimeout <= 0 {
		errs = append(errs, errors.New("auth.auto_lock_timeout must be positive"))
	}
	if c.Crypto.PinIterations < MinPinIterations {
		errs = append(errs, fmt.Errorf("crypto.pin_iterations must be at least %d", MinPinIterations))
	}
	return errors.Join(errs...)
}

// DefaultDir returns the per-user pinvault directory.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	return filepath.Join(dir, "pinvault"), nil
}

// GetConfigPath returns the default configuration file path.
func GetConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+".yaml"), nil
}

// Defaults returns the built-in configuration values keyed by viper key.
func Defaults() map[string]any {
	vaultPath := "vault.db"
	if dir, err := DefaultDir(); err == nil {
		vaultPath = filepath.Join(dir, "vault.db")
	}
	return map[string]any{
		"vault.path":               vaultPath,
		"vault.driver":             storage.DriverBolt,
		"keyring.service":          keyring.DefaultService,
		"auth.max_failed_attempts": auth.DefaultMaxFailedAttempts,
		"auth.lockout_duration":    auth.DefaultLockoutDuration.String(),
		"auth.auto_lock_timeout":   auth.DefaultAutoLockTimeout.String(),
		"crypto.pin_iterations":    crypto.DefaultPinIters,
		"export.dir":               ".",
		"log.level":                "warn",
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"vault":      "vault.path",
	"driver":     "vault.driver",
	"export-dir": "export.dir",
	"log-level":  "log.level",
}

// Load builds the configuration. configFile, when not empty, replaces the
// search of the standard locations. flags may be nil.
func Load(flags *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		if dir, err := DefaultDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, a malformed one is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// fileConfig is the on-disk layout. Durations are written as strings so
// the file stays readable.
type fileConfig struct {
	Vault struct {
		Path   string `yaml:"path"`
		Driver string `yaml:"driver"`
	} `yaml:"vault"`
	Keyring struct {
		Service string `yaml:"service"`
	} `yaml:"keyring"`
	Auth struct {
		MaxFailedAttempts int    `yaml:"max_failed_attempts"`
		LockoutDuration   string `yaml:"lockout_duration"`
		AutoLockTimeout   string `yaml:"auto_lock_timeout"`
	} `yaml:"auth"`
	Crypto struct {
		PinIterations int `yaml:"pin_iterations"`
	} `yaml:"crypto"`
	Export struct {
		Dir string `yaml:"dir"`
	} `yaml:"export"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// WriteConfigFile writes c as YAML to path, or to the default location when
// path is empty. It returns the path written.
func WriteConfigFile(c *Config, path string) (string, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return "", err
		}
		path = p
	}

	var f fileConfig
	f.Vault.Path = c.Vault.Path
	f.Vault.Driver = c.Vault.Driver
	f.Keyring.Service = c.Keyring.Service
	f.Auth.MaxFailedAttempts = c.Auth.MaxFailedAttempts
	f.Auth.LockoutDuration = c.Auth.LockoutDuration.String()
	f.Auth.AutoLockTimeout = c.Auth.AutoLockTimeout.String()
	f.Crypto.PinIterations = c.Crypto.PinIterations
	f.Export.Dir = c.Export.Dir
	f.Log.Level = c.Log.Level

	data, err := yaml.Marshal(&f)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}
