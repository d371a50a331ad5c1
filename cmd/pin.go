package cmd

import (
	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

func newPinCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the vault PIN",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "change",
		Short: "Replace the PIN after verifying the current one",
		Long:  "Replace the PIN. The current PIN is verified first and a wrong one counts\nas a failed attempt. Records are not re-encrypted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			oldPin, err := GetPIN("Current PIN: ")
			if err != nil {
				return err
			}
			newPin, err := readNewPinInteractive()
			if err != nil {
				return err
			}
			return a.run(func(v *core.Vault) error {
				if err := v.ChangePin(cmd.Context(), oldPin, newPin); err != nil {
					return err
				}
				printf(cmd, "PIN changed\n")
				return nil
			})
		},
	})
	return cmd
}

// readNewPinInteractive reads the new PIN from PINVAULT_NEW_PIN or the
// terminal. PINVAULT_PIN already holds the current one.
func readNewPinInteractive() (string, error) {
	if pin := getenv(newPinEnvVar); pin != "" {
		return pin, nil
	}
	if !core.IsTerminal() {
		return "", errNewPinRequired
	}
	return core.ReadPinConfirm("New PIN: ")
}
