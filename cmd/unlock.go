package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
	"github.com/illarion/pinvault/internal/vaulterr"
)

var errUnlockFailed = errors.New("unlock failed")

func newUnlockCmd(a *app) *cobra.Command {
	var useBiometric bool

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Start a session with the PIN or biometrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.run(func(v *core.Vault) error {
				var (
					ok  bool
					err error
				)
				if useBiometric {
					ok, err = v.UnlockWithBiometric(ctx)
				} else {
					// Surface an active lockout before asking for the PIN.
					st, serr := v.Status(ctx)
					if serr != nil {
						return serr
					}
					if st.Auth.LockedOut {
						return &vaulterr.LockedOutError{Remaining: st.Auth.LockoutRemaining}
					}
					pin, perr := GetPIN("Enter PIN: ")
					if perr != nil {
						return perr
					}
					ok, err = v.UnlockWithPIN(ctx, pin)
				}
				if err != nil {
					return err
				}
				if !ok {
					return unlockRejected(ctx, v)
				}
				printf(cmd, "Vault unlocked\n")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&useBiometric, "biometric", false, "unlock with biometric authentication")
	return cmd
}

// unlockRejected explains a failed attempt using the updated lockout state.
func unlockRejected(ctx context.Context, v *core.Vault) error {
	st, err := v.Status(ctx)
	if err != nil {
		return err
	}
	if st.Auth.LockedOut {
		return &vaulterr.LockedOutError{Remaining: st.Auth.LockoutRemaining}
	}
	return fmt.Errorf("%w: %d attempts remaining", errUnlockFailed, st.Auth.AttemptsRemaining)
}
