package prompt

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MinTextLength is the minimum trimmed rune count for a candidate to be saved.
	MinTextLength = 3

	// MergeThreshold is the coverage percentage at which a candidate updates an
	// existing record instead of creating a new one.
	MergeThreshold = 80.0
)

// Outcome describes what Reconcile did with a candidate.
type Outcome int

const (
	OutcomeRejectedShort Outcome = iota
	OutcomeRejectedDuplicate
	OutcomeUpdated
	OutcomeCreated
)

// Saved reports whether the outcome wrote a record.
func (o Outcome) Saved() bool {
	return o == OutcomeUpdated || o == OutcomeCreated
}

func (o Outcome) String() string {
	switch o {
	case OutcomeRejectedShort:
		return "rejected_short"
	case OutcomeRejectedDuplicate:
		return "rejected_duplicate"
	case OutcomeUpdated:
		return "updated"
	case OutcomeCreated:
		return "created"
	default:
		return "unknown"
	}
}

// Candidate is a captured draft offered to Reconcile.
type Candidate struct {
	Text     string
	Platform string
	URL      string

	// ForceSave marks an explicit commit (Enter). It runs the same
	// reconciliation as a debounced save.
	ForceSave bool
}

// Result is the output of Reconcile.
type Result struct {
	// Records is the new store contents. It aliases the input only when the
	// candidate was rejected.
	Records []Record

	Outcome Outcome

	// Record is the created or updated record (zero on rejection)
	Record Record

	// PreviousText is the text replaced by an update
	PreviousText string
}

// Reconcile merges c into records (most-recent-first) and applies the
// retention cap. It never mutates the input slice.
//
// Rules, in order:
//   - trimmed text shorter than MinTextLength is rejected
//   - a candidate equal to records[0] in text and platform is rejected
//   - the first same-platform record that contains the candidate, or that the
//     candidate covers by at least MergeThreshold, is updated (text, url,
//     timestamp) and moved to the front; identical texts are skipped
//   - otherwise a new record is inserted at the front
//
// maxPrompts <= 0 falls back to DefaultMaxPrompts.
func Reconcile(c Candidate, records []Record, maxPrompts int, now time.Time, newID func() string) Result {
	if utf8.RuneCountInString(strings.TrimSpace(c.Text)) < MinTextLength {
		return Result{Records: records, Outcome: OutcomeRejectedShort}
	}
	if len(records) > 0 && records[0].Text == c.Text && records[0].Platform == c.Platform {
		return Result{Records: records, Outcome: OutcomeRejectedDuplicate}
	}
	if maxPrompts <= 0 {
		maxPrompts = DefaultMaxPrompts
	}

	ts := Millis(now)
	match := -1
	for i, r := range records {
		if r.Platform != c.Platform || r.Text == c.Text {
			continue
		}
		if strings.Contains(r.Text, c.Text) || Coverage(c.Text, r.Text) >= MergeThreshold {
			match = i
			break
		}
	}

	out := make([]Record, 0, len(records)+1)
	res := Result{}

	if match >= 0 {
		updated := records[match]
		res.PreviousText = updated.Text
		updated.Text = c.Text
		updated.URL = c.URL
		updated.Timestamp = ts

		out = append(out, updated)
		out = append(out, records[:match]...)
		out = append(out, records[match+1:]...)
		res.Outcome = OutcomeUpdated
		res.Record = updated
	} else {
		created := Record{
			ID:        newID(),
			Text:      c.Text,
			Platform:  c.Platform,
			URL:       c.URL,
			Timestamp: ts,
		}
		out = append(out, created)
		out = append(out, records...)
		res.Outcome = OutcomeCreated
		res.Record = created
	}

	res.Records = Truncate(out, maxPrompts)
	return res
}

// Truncate drops tail records beyond max.
func Truncate(records []Record, max int) []Record {
	if max > 0 && len(records) > max {
		return records[:max]
	}
	return records
}
