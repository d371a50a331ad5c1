package cmd

import (
	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

func newBiometricCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "biometric",
		Short: "Enable or disable biometric unlock",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Allow unlocking with biometrics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.run(func(v *core.Vault) error {
					if err := v.EnableBiometric(cmd.Context()); err != nil {
						return err
					}
					printf(cmd, "Biometric unlock enabled\n")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Require the PIN for every unlock",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.run(func(v *core.Vault) error {
					if err := v.DisableBiometric(cmd.Context()); err != nil {
						return err
					}
					printf(cmd, "Biometric unlock disabled\n")
					return nil
				})
			},
		},
	)
	return cmd
}
