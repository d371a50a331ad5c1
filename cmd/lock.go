package cmd

import (
	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

func newLockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(func(v *core.Vault) error {
				if err := v.Lock(cmd.Context()); err != nil {
					return err
				}
				printf(cmd, "Vault locked\n")
				return nil
			})
		},
	}
}
