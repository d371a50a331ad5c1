package cmd

import (
	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(func(v *core.Vault) error {
				for _, id := range args {
					if err := v.DeleteRecord(cmd.Context(), id); err != nil {
						return err
					}
					printf(cmd, "Removed %s\n", id)
				}
				return nil
			})
		},
	}
}
