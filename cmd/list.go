package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/core"
	"github.com/illarion/pinvault/internal/logging"
)

func newListCmd(a *app) *cobra.Command {
	var (
		search   string
		category string
		expiring int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List records without their license keys",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.run(func(v *core.Vault) error {
				var (
					res *core.ListResult
					cat core.Category
					err error
				)
				if category != "" {
					if cat, err = core.ParseCategory(category); err != nil {
						return err
					}
				}
				switch {
				case cmd.Flags().Changed("expiring"):
					res, err = v.Expiring(ctx, expiring)
				case cat != "":
					res, err = v.ByCategory(ctx, cat)
				default:
					res, err = v.Search(ctx, search)
				}
				if err != nil {
					return err
				}

				// The vault applies one filter; the others narrow the result here.
				records := res.Records
				if cmd.Flags().Changed("expiring") || category != "" {
					records = narrow(records, search, category)
				}
				if cmd.Flags().Changed("expiring") {
					core.SortByDueDate(records)
				}

				if len(res.Skipped) > 0 {
					logging.Warnf("%d records failed verification and were skipped", len(res.Skipped))
				}
				return printRecords(cmd, records)
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "match name, vendor or license key")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only records in this category")
	cmd.Flags().IntVarP(&expiring, "expiring", "e", 30, "only records expiring or renewing within N days")
	return cmd
}

func printRecords(cmd *cobra.Command, records []core.Record) error {
	if len(records) == 0 {
		printf(cmd, "No records\n")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVENDOR\tCATEGORY\tDUE")
	for i := range records {
		r := &records[i]
		due := ""
		if d, ok := r.DueDate(); ok {
			due = d.Format(core.DateLayout)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Vendor, r.Category, due)
	}
	return w.Flush()
}

func narrow(records []core.Record, search, category string) []core.Record {
	match := core.MatchQuery(search)
	kept := records[:0]
	for i := range records {
		r := &records[i]
		if category != "" && !strings.EqualFold(string(r.Category), category) {
			continue
		}
		if search != "" && !match(r) {
			continue
		}
		kept = append(kept, *r)
	}
	return kept
}
