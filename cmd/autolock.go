package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
	"github.com/illarion/pinvault/internal/vaulterr"
)

func newAutolockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "autolock <duration>",
		Short: "Set the session auto-lock timeout",
		Example: `  pinvault autolock 5m
  pinvault autolock 90s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", vaulterr.ErrInvalidFormat, err)
			}
			return a.run(func(v *core.Vault) error {
				if err := v.SetAutoLockTimeout(cmd.Context(), d); err != nil {
					return err
				}
				printf(cmd, "Auto-lock timeout set to %s\n", d)
				return nil
			})
		},
	}
}
