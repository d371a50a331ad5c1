package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/illarion/pinvault/internal/core"
)

// recordFlags are the editable record fields shared by add and update.
type recordFlags struct {
	name, vendor, key, serial string
	purchase, expiry, renewal string
	notes, category           string
	urls                      []string
	archived                  bool
}

func (f *recordFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "product name")
	fs.StringVar(&f.vendor, "vendor", "", "vendor or publisher")
	fs.StringVar(&f.key, "key", "", "license key")
	fs.StringVar(&f.serial, "serial", "", "serial number")
	fs.StringVar(&f.purchase, "purchased", "", "purchase date (YYYY-MM-DD)")
	fs.StringVar(&f.expiry, "expires", "", "expiry date (YYYY-MM-DD)")
	fs.StringVar(&f.renewal, "renews", "", "renewal date (YYYY-MM-DD)")
	fs.StringVar(&f.notes, "notes", "", "free-form notes")
	fs.StringVar(&f.category, "category", "", "Software, Game, Subscription, Template or Other")
	fs.StringSliceVar(&f.urls, "url", nil, "download URL (repeatable)")
	fs.BoolVar(&f.archived, "archived", false, "mark the record archived")
}

// apply copies every flag set on the command line into rec.
func (f *recordFlags) apply(fs *pflag.FlagSet, rec *core.Record) error {
	set := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	set("name", &rec.Name, f.name)
	set("vendor", &rec.Vendor, f.vendor)
	set("key", &rec.LicenseKey, f.key)
	set("serial", &rec.SerialNumber, f.serial)
	set("purchased", &rec.PurchaseDate, f.purchase)
	set("expires", &rec.ExpiryDate, f.expiry)
	set("renews", &rec.RenewalDate, f.renewal)
	set("notes", &rec.Notes, f.notes)

	if fs.Changed("category") {
		c, err := core.ParseCategory(f.category)
		if err != nil {
			return err
		}
		rec.Category = c
	}
	if fs.Changed("url") {
		rec.DownloadURLs = f.urls
	}
	if fs.Changed("archived") {
		rec.Archived = f.archived
	}
	return nil
}

func newAddCmd(a *app) *cobra.Command {
	var f recordFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a license record",
		Example: `  pinvault add --name "Photo Editor" --vendor Acme --key ABCD-1234 --expires 2027-01-31
  pinvault add --name "Cloud Sync" --category subscription --renews 2026-12-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec core.Record
			if err := f.apply(cmd.Flags(), &rec); err != nil {
				return err
			}
			return a.run(func(v *core.Vault) error {
				saved, err := v.AddRecord(cmd.Context(), rec)
				if err != nil {
					return err
				}
				printf(cmd, "Added %s\n", saved.ID)
				return nil
			})
		},
	}

	f.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
