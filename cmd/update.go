package cmd

import (
	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

func newUpdateCmd(a *app) *cobra.Command {
	var (
		f      recordFlags
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a record and show what changed",
		Example: `  pinvault update 3f1c... --expires 2028-01-31
  pinvault update 3f1c... --notes "moved to new laptop" --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.run(func(v *core.Vault) error {
				current, err := v.GetRecord(ctx, args[0])
				if err != nil {
					return err
				}
				updated := *current
				if err := f.apply(cmd.Flags(), &updated); err != nil {
					return err
				}
				if err := updated.Validate(); err != nil {
					return err
				}

				diff, err := core.DiffRecords(current, &updated)
				if err != nil {
					return err
				}
				if diff == "" {
					printf(cmd, "No changes\n")
					return nil
				}
				printf(cmd, "%s", diff)
				if dryRun {
					return nil
				}

				if _, err := v.UpdateRecord(ctx, updated); err != nil {
					return err
				}
				printf(cmd, "Updated %s\n", updated.ID)
				return nil
			})
		},
	}

	f.register(cmd.Flags())
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the changes without saving them")
	return cmd
}
