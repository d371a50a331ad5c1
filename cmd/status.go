package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
	"github.com/illarion/pinvault/internal/git"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault, lockout and session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(func(v *core.Vault) error {
				st, err := v.Status(cmd.Context())
				if err != nil {
					return err
				}
				printStatus(cmd, st)
				return nil
			})
		},
	}
}

func printStatus(cmd *cobra.Command, st *core.StatusInfo) {
	printf(cmd, "Vault:    %s (%s)\n", st.Path, st.Driver)
	printf(cmd, "ID:       %s\n", st.VaultID)
	printf(cmd, "Records:  %d (modified %s)\n", st.RecordCount, st.Modified.Local().Format(time.RFC3339))
	if st.Auth.PinSet && !st.MasterKey {
		printf(cmd, "Keys:     master key missing from the OS keyring, records cannot be read\n")
	}

	if st.Unlocked {
		printf(cmd, "Session:  unlocked for %s (auto-lock after %s)\n",
			st.UnlockedFor.Truncate(time.Second), st.AutoLockTimeout)
	} else {
		printf(cmd, "Session:  locked (auto-lock after %s)\n", st.AutoLockTimeout)
	}

	switch {
	case !st.Auth.PinSet:
		printf(cmd, "PIN:      not set\n")
	case st.Auth.LockedOut:
		printf(cmd, "PIN:      locked out for %s\n", st.Auth.LockoutRemaining.Round(time.Second))
	case st.Auth.FailedAttempts > 0:
		printf(cmd, "PIN:      %d failed attempts, %d remaining\n", st.Auth.FailedAttempts, st.Auth.AttemptsRemaining)
	default:
		printf(cmd, "PIN:      set\n")
	}

	bio := "disabled"
	if st.Auth.BiometricEnabled {
		bio = "enabled"
	}
	if !st.Auth.BiometricAvailable {
		bio += " (unavailable on this system)"
	}
	printf(cmd, "Biometric: %s\n", bio)

	if out := git.FormatExposure(st.Git); out != "" {
		printf(cmd, "%s", out)
	}
}
