package cmd

import (
	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
	"github.com/illarion/pinvault/internal/logging"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add records from a JSON export",
		Long:  "Add records from a JSON export in the export directory. Every imported\nrecord gets a new id. Entries that fail validation are skipped and counted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(func(v *core.Vault) error {
				res, err := v.ImportJSON(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if res.Failed > 0 {
					logging.Warnf("%d entries could not be imported", res.Failed)
				}
				printf(cmd, "Imported %d records\n", res.Imported)
				return nil
			})
		},
	}
}
