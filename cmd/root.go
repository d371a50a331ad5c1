package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/config"
	"github.com/illarion/pinvault/internal/core"
	"github.com/illarion/pinvault/internal/logging"
)

var version = "dev" // set by the linker

// app carries what every command needs once the configuration is loaded.
type app struct {
	cfgFile string
	cfg     *config.Config
}

// vault opens a Vault handle for the loaded configuration.
func (a *app) vault() *core.Vault {
	return core.New(core.Options{
		Path:           a.cfg.Vault.Path,
		Driver:         a.cfg.Vault.Driver,
		KeyringService: a.cfg.Keyring.Service,
		ExportDir:      a.cfg.Export.Dir,
		PinIterations:  a.cfg.Crypto.PinIterations,
		Policy:         a.cfg.Policy(),
	})
}

// run opens the vault, hands it to fn and closes it again.
func (a *app) run(fn func(*core.Vault) error) error {
	v := a.vault()
	defer func() {
		if err := v.Close(); err != nil {
			logging.Warnf("failed to close vault: %v", err)
		}
	}()
	return fn(v)
}

// NewRootCmd builds the command tree. Tests use it to get a fresh tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pinvault",
		Short:         "PIN-protected vault for software license keys",
		Long:          "pinvault keeps license keys, serials and subscriptions encrypted at rest,\nbehind a PIN with attempt lockout and an auto-locking session.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), a.cfgFile)
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.Log.Level, os.Stderr); err != nil {
				return err
			}
			a.cfg = cfg
			logging.Debugf("using %s vault at %s", cfg.Vault.Driver, cfg.Vault.Path)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/pinvault/pinvault.yaml)")
	pf.String("vault", "", "path to the vault file")
	pf.String("driver", "", "storage driver (bolt or sqlite)")
	pf.String("export-dir", "", "directory for exports and imports")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newInitCmd(a),
		newUnlockCmd(a),
		newLockCmd(a),
		newStatusCmd(a),
		newPinCmd(a),
		newAutolockCmd(a),
		newBiometricCmd(a),
		newAddCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newUpdateCmd(a),
		newRmCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newWipeCmd(a),
		newCompactCmd(a),
		newConfigCmd(a),
		newCompletionCmd(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(ctx context.Context) {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		HandleError(err)
	}
}

func printf(cmd *cobra.Command, format string, a ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, a...)
}
