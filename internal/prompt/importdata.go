package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/kayko/internal/errors"
)

// ParseExport decodes an export/import payload. The payload must be a JSON
// array of records, each with a non-empty id and text. Any violation fails
// the whole payload.
func ParseExport(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.NewMalformedImport("import payload must be a JSON array", nil)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, errors.NewMalformedImport(fmt.Sprintf("invalid JSON: %v", err), nil)
	}

	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		var r Record
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, errors.NewMalformedImport(
				fmt.Sprintf("record %d: %v", i, err),
				map[string]any{"index": i},
			)
		}
		if err := validate.Struct(r); err != nil {
			return nil, errors.NewMalformedImport(
				fmt.Sprintf("record %d: %v", i, err),
				map[string]any{"index": i},
			)
		}
		if r.Text == "" {
			return nil, errors.NewMalformedImport(
				fmt.Sprintf("record %d: text is required", i),
				map[string]any{"index": i},
			)
		}
		records = append(records, r)
	}
	return records, nil
}

// MergeImport places imported records that are not already present (by id)
// ahead of the existing ones, then applies the cap. It returns the merged list
// and the number of imported records that survived the cap. Duplicate ids
// within imported keep the first occurrence.
func MergeImport(existing, imported []Record, maxPrompts int) ([]Record, int) {
	seen := make(map[string]bool, len(existing)+len(imported))
	for _, r := range existing {
		seen[r.ID] = true
	}

	fresh := make([]Record, 0, len(imported))
	for _, r := range imported {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		fresh = append(fresh, r)
	}

	merged := make([]Record, 0, len(fresh)+len(existing))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)
	if maxPrompts <= 0 {
		maxPrompts = DefaultMaxPrompts
	}
	return Truncate(merged, maxPrompts), min(len(fresh), maxPrompts)
}
