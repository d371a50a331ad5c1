package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

var errWipeNeedsForce = errors.New("wipe destroys every record and the keys; pass --force to confirm")

func newWipeCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Destroy the master key, the PIN and every record",
		Long:  "Factory reset. The master key and PIN are removed from the OS keyring\nfirst, then all records and the lockout state. This cannot be undone.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return errWipeNeedsForce
			}
			return a.run(func(v *core.Vault) error {
				if err := v.FactoryWipe(cmd.Context()); err != nil {
					return err
				}
				printf(cmd, "Vault wiped\n")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm the wipe")
	return cmd
}
