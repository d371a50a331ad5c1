package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write decrypted records to a file in the export directory",
		Long:  "Write decrypted records to a file. The file name is resolved inside the\nexport directory and may not escape it. The file is created with mode 0600.",
	}

	sub := func(format string, export func(*core.Vault, context.Context, string) (int, error)) *cobra.Command {
		return &cobra.Command{
			Use:   format + " <file>",
			Short: "Export records as " + format,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(func(v *core.Vault) error {
					n, err := export(v, cmd.Context(), args[0])
					if err != nil {
						return err
					}
					printf(cmd, "Exported %d records to %s\n", n, args[0])
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		sub("json", (*core.Vault).ExportJSON),
		sub("csv", (*core.Vault).ExportCSV),
	)
	return cmd
}
