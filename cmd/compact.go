package cmd

import (
	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

func newCompactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Reclaim unused space in the vault file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(func(v *core.Vault) error {
				if err := v.Compact(cmd.Context()); err != nil {
					return err
				}
				printf(cmd, "Vault compacted\n")
				return nil
			})
		},
	}
}
