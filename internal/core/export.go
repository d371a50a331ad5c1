package core

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/illarion/pinvault/internal/logging"
	"github.com/illarion/pinvault/internal/security"
	"github.com/illarion/pinvault/internal/vaulterr"
)

var csvHeader = []string{
	"Product Name",
	"Vendor",
	"License Key",
	"Serial Number",
	"Purchase Date",
	"Expiry Date",
	"Renewal Date",
	"Category",
	"Notes",
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Imported int
	Failed   int
}

func (v *Vault) exportDir() (*security.PathValidator, error) {
	dir := v.opts.ExportDir
	if dir == "" {
		dir = "."
	}
	return security.New(dir)
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteCSV writes records as CSV with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Name,
			r.Vendor,
			r.LicenseKey,
			r.SerialNumber,
			r.PurchaseDate,
			r.ExpiryDate,
			r.RenewalDate,
			string(r.Category),
			r.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON writes every readable record to name inside the export
// directory and returns how many were written.
func (v *Vault) ExportJSON(ctx context.Context, name string) (int, error) {
	return v.export(ctx, name, WriteJSON)
}

// ExportCSV writes every readable record to name inside the export
// directory as CSV.
func (v *Vault) ExportCSV(ctx context.Context, name string) (int, error) {
	return v.export(ctx, name, WriteCSV)
}

func (v *Vault) export(ctx context.Context, name string, write func(io.Writer, []Record) error) (int, error) {
	result, err := v.ListRecords(ctx)
	if err != nil {
		return 0, err
	}

	dir, err := v.exportDir()
	if err != nil {
		return 0, err
	}
	defer dir.Close()

	f, err := dir.Create(name)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	if err := write(f, result.Records); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close export file: %w", err)
	}

	if len(result.Skipped) > 0 {
		logging.Warnf("%d unreadable record(s) left out of export", len(result.Skipped))
	}
	logging.Infof("exported %d record(s) to %s", len(result.Records), name)
	return len(result.Records), nil
}

// ImportJSON reads a JSON array of records from name inside the export
// directory and adds each as a new record. Ids and timestamps in the file
// are ignored. Items that fail validation are counted and skipped.
func (v *Vault) ImportJSON(ctx context.Context, name string) (*ImportResult, error) {
	if err := v.requireUnlocked(ctx); err != nil {
		return nil, err
	}

	dir, err := v.exportDir()
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	data, err := dir.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: import file must hold a JSON array: %v", vaulterr.ErrInvalidFormat, err)
	}

	result := &ImportResult{}
	for i, raw := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			logging.Warnf("skipping import item %d: %v", i, err)
			result.Failed++
			continue
		}
		rec.Category = Category(normalizeCategory(string(rec.Category)))
		if _, err := v.AddRecord(ctx, rec); err != nil {
			if !errors.Is(err, vaulterr.ErrInvalidFormat) {
				return result, err
			}
			logging.Warnf("skipping import item %d: %v", i, err)
			result.Failed++
			continue
		}
		result.Imported++
	}
	logging.Infof("imported %d record(s), %d failed", result.Imported, result.Failed)
	return result, nil
}

func normalizeCategory(s string) string {
	if c, err := ParseCategory(strings.TrimSpace(s)); err == nil {
		return string(c)
	}
	return s
}
