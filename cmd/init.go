package cmd

import (
	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new vault and set its PIN",
		Long:  "Create a new vault, generate its master key in the OS keyring and set the PIN.\nThe PIN is 4 to 6 digits. PINVAULT_PIN is used when set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pin, err := GetNewPIN("Choose PIN: ")
			if err != nil {
				return err
			}
			return a.run(func(v *core.Vault) error {
				if err := v.Init(cmd.Context(), pin); err != nil {
					return err
				}
				printf(cmd, "Initialized vault at %s\n", v.Path())
				return nil
			})
		},
	}
}
