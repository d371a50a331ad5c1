package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
)

func newGetCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one record including its license key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(func(v *core.Vault) error {
				rec, err := v.GetRecord(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return core.WriteJSON(cmd.OutOrStdout(), []core.Record{*rec})
				}
				printRecord(cmd, rec)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")
	return cmd
}

func printRecord(cmd *cobra.Command, rec *core.Record) {
	field := func(label, value string) {
		if value != "" {
			printf(cmd, "%-10s %s\n", label+":", value)
		}
	}
	field("ID", rec.ID)
	field("Name", rec.Name)
	field("Vendor", rec.Vendor)
	field("Category", string(rec.Category))
	field("Key", rec.LicenseKey)
	field("Serial", rec.SerialNumber)
	field("Purchased", rec.PurchaseDate)
	field("Expires", rec.ExpiryDate)
	field("Renews", rec.RenewalDate)
	field("URLs", strings.Join(rec.DownloadURLs, ", "))
	field("Notes", rec.Notes)
	if rec.Archived {
		field("Archived", "yes")
	}
}
