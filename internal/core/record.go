package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/illarion/pinvault/internal/crypto"
	"github.com/illarion/pinvault/internal/logging"
	"github.com/illarion/pinvault/internal/storage"
	"github.com/illarion/pinvault/internal/vaulterr"
)

// Category classifies a record.
type Category string

const (
	CategorySoftware     Category = "Software"
	CategoryGame         Category = "Game"
	CategorySubscription Category = "Subscription"
	CategoryTemplate     Category = "Template"
	CategoryOther        Category = "Other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategorySoftware, CategoryGame, CategorySubscription, CategoryTemplate, CategoryOther,
}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", vaulterr.ErrInvalidFormat, s)
}

// DateLayout is the layout of the optional date fields.
const DateLayout = "2006-01-02"

// Record is the plaintext of one vault entry. It is encrypted as a whole.
type Record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Vendor       string    `json:"vendor"`
	LicenseKey   string    `json:"licenseKey"`
	SerialNumber string    `json:"serialNumber,omitempty"`
	PurchaseDate string    `json:"purchaseDate,omitempty"`
	ExpiryDate   string    `json:"expiryDate,omitempty"`
	RenewalDate  string    `json:"renewalDate,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Category     Category  `json:"category"`
	DownloadURLs []string  `json:"downloadUrls,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Archived     bool      `json:"archived,omitempty"`
}

// Validate checks the required fields and the date formats.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", vaulterr.ErrInvalidFormat)
	}
	if r.Category == "" {
		r.Category = CategoryOther
	}
	if _, err := ParseCategory(string(r.Category)); err != nil {
		return err
	}
	for field, value := range map[string]string{
		"purchase date": r.PurchaseDate,
		"expiry date":   r.ExpiryDate,
		"renewal date":  r.RenewalDate,
	} {
		if value == "" {
			continue
		}
		if _, err := parseDate(value); err != nil {
			return fmt.Errorf("%w: %s %q", vaulterr.ErrInvalidFormat, field, value)
		}
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// DueDate returns the expiry date, falling back to the renewal date.
func (r *Record) DueDate() (time.Time, bool) {
	for _, s := range []string{r.ExpiryDate, r.RenewalDate} {
		if s == "" {
			continue
		}
		if t, err := parseDate(s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ListResult is the outcome of a bulk read. Skipped holds the ids of
// records that failed authentication and were left out.
type ListResult struct {
	Records []Record
	Skipped []string
}

func sealRecord(rec *Record, key []byte) (*storage.StoredRecord, error) {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	defer crypto.ClearBytes(plaintext)

	enc, err := crypto.Encrypt(plaintext, key, []byte(rec.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt record: %w", err)
	}
	return &storage.StoredRecord{
		ID:         rec.ID,
		Ciphertext: enc.Ciphertext,
		Nonce:      enc.Nonce,
		Tag:        enc.Tag,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

func openRecord(stored *storage.StoredRecord, key []byte) (*Record, error) {
	plaintext, err := crypto.Decrypt(&crypto.EncryptedRecord{
		Ciphertext: stored.Ciphertext,
		Nonce:      stored.Nonce,
		Tag:        stored.Tag,
	}, key, []byte(stored.ID))
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(plaintext)

	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", vaulterr.ErrInvalidFormat, stored.ID, err)
	}
	// The id inside the ciphertext must match the authenticated id.
	if rec.ID != stored.ID {
		return nil, vaulterr.ErrTamperDetected
	}
	return &rec, nil
}

// AddRecord encrypts and stores a new record. The id and timestamps are
// assigned here.
func (v *Vault) AddRecord(ctx context.Context, rec Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	now := v.clock.Now().UTC()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	err := v.withKeys(ctx, func(keys *crypto.DerivedKeys) error {
		stored, err := sealRecord(&rec, keys.Database)
		if err != nil {
			return err
		}
		return vaulterr.Storage("put record", v.store.PutRecord(ctx, *stored))
	})
	if err != nil {
		return nil, err
	}
	logging.Infof("added record %s", rec.ID)
	return &rec, nil
}

// GetRecord decrypts one record.
func (v *Vault) GetRecord(ctx context.Context, id string) (*Record, error) {
	var rec *Record
	err := v.withKeys(ctx, func(keys *crypto.DerivedKeys) error {
		var err error
		rec, err = v.loadRecord(ctx, id, keys)
		return err
	})
	return rec, err
}

func (v *Vault) loadRecord(ctx context.Context, id string, keys *crypto.DerivedKeys) (*Record, error) {
	stored, err := v.store.GetRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", vaulterr.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, vaulterr.Storage("get record", err)
	}
	if stored.ID != id {
		return nil, vaulterr.ErrTamperDetected
	}
	return openRecord(stored, keys.Database)
}

// UpdateRecord replaces the fields of an existing record. The creation time
// is preserved and the modification time is set to now.
func (v *Vault) UpdateRecord(ctx context.Context, rec Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	err := v.withKeys(ctx, func(keys *crypto.DerivedKeys) error {
		existing, err := v.loadRecord(ctx, rec.ID, keys)
		if err != nil {
			return err
		}
		rec.CreatedAt = existing.CreatedAt
		rec.UpdatedAt = v.clock.Now().UTC()

		stored, err := sealRecord(&rec, keys.Database)
		if err != nil {
			return err
		}
		return vaulterr.Storage("put record", v.store.PutRecord(ctx, *stored))
	})
	if err != nil {
		return nil, err
	}
	logging.Infof("updated record %s", rec.ID)
	return &rec, nil
}

// ListRecords decrypts every record, newest first. Records that fail
// authentication are reported in Skipped and do not abort the read.
func (v *Vault) ListRecords(ctx context.Context) (*ListResult, error) {
	result := &ListResult{}
	err := v.withKeys(ctx, func(keys *crypto.DerivedKeys) error {
		stored, err := v.store.ListRecords(ctx)
		if err != nil {
			return vaulterr.Storage("list records", err)
		}
		for i := range stored {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := openRecord(&stored[i], keys.Database)
			if err != nil {
				if errors.Is(err, vaulterr.ErrTamperDetected) || errors.Is(err, vaulterr.ErrInvalidFormat) {
					logging.Warnf("skipping record %s: %v", stored[i].ID, err)
					result.Skipped = append(result.Skipped, stored[i].ID)
					continue
				}
				return err
			}
			result.Records = append(result.Records, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteRecord removes one record.
func (v *Vault) DeleteRecord(ctx context.Context, id string) error {
	if err := v.requireUnlocked(ctx); err != nil {
		return err
	}
	err := v.store.DeleteRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", vaulterr.ErrRecordNotFound, id)
	}
	if err != nil {
		return vaulterr.Storage("delete record", err)
	}
	logging.Infof("deleted record %s", id)
	return nil
}

// Search returns records whose name, vendor or license key contains query,
// ignoring case.
func (v *Vault) Search(ctx context.Context, query string) (*ListResult, error) {
	return v.filter(ctx, MatchQuery(query))
}

// ByCategory returns the records of one category.
func (v *Vault) ByCategory(ctx context.Context, c Category) (*ListResult, error) {
	return v.filter(ctx, func(r *Record) bool { return r.Category == c })
}

// Expiring returns records whose due date falls within the next days days.
func (v *Vault) Expiring(ctx context.Context, days int) (*ListResult, error) {
	return v.filter(ctx, ExpiringWithin(v.clock.Now(), days))
}

func (v *Vault) filter(ctx context.Context, keep func(*Record) bool) (*ListResult, error) {
	all, err := v.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	out := &ListResult{Skipped: all.Skipped}
	for i := range all.Records {
		if keep(&all.Records[i]) {
			out.Records = append(out.Records, all.Records[i])
		}
	}
	return out, nil
}

// MatchQuery returns a predicate for case-insensitive search.
func MatchQuery(query string) func(*Record) bool {
	q := strings.ToLower(query)
	return func(r *Record) bool {
		return strings.Contains(strings.ToLower(r.Name), q) ||
			strings.Contains(strings.ToLower(r.Vendor), q) ||
			strings.Contains(strings.ToLower(r.LicenseKey), q)
	}
}

// ExpiringWithin returns a predicate matching records due between now and
// now plus days.
func ExpiringWithin(now time.Time, days int) func(*Record) bool {
	limit := now.AddDate(0, 0, days)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return func(r *Record) bool {
		due, ok := r.DueDate()
		if !ok {
			return false
		}
		return !due.Before(today) && !due.After(limit)
	}
}

// SortByDueDate orders records by due date, records without one last.
func SortByDueDate(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		di, oki := records[i].DueDate()
		dj, okj := records[j].DueDate()
		if oki != okj {
			return oki
		}
		return di.Before(dj)
	})
}
