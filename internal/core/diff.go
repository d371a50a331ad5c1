package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffRecords renders a line diff of two records' JSON forms for an update
// preview. Unchanged lines are prefixed with a space, removed lines with
// "-" and added lines with "+". It returns an empty string when the records
// are identical apart from their timestamps.
func DiffRecords(old, updated *Record) (string, error) {
	a, err := diffableJSON(old)
	if err != nil {
		return "", err
	}
	b, err := diffableJSON(updated)
	if err != nil {
		return "", err
	}
	if a == b {
		return "", nil
	}

	dmp := diffmatchpatch.New()
	ca, cb, lineArray := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- a/%s\n", old.ID))
	result.WriteString(fmt.Sprintf("+++ b/%s\n", updated.ID))
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			result.WriteString(prefix)
			result.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				result.WriteByte('\n')
			}
		}
	}
	return result.String(), nil
}

// diffableJSON drops the timestamps, which always differ after an update.
func diffableJSON(r *Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	delete(fields, "createdAt")
	delete(fields, "updatedAt")

	data, err = json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(data) + "\n", nil
}
