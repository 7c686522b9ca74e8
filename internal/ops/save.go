package ops

import (
	"context"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// SaveInput contains parameters for the Save operation.
type SaveInput struct {
	Text      string // required; stored untrimmed
	Platform  string // optional; detected from URL when empty
	URL       string // optional
	ForceSave bool   // explicit commit (Enter)
}

// SaveOutput contains the result of the Save operation.
type SaveOutput struct {
	Saved   bool           `json:"saved"`
	Outcome string         `json:"outcome"`
	Record  *prompt.Record `json:"record,omitempty"`
	Diff    *DiffStats     `json:"diff,omitempty"`
}

// DiffStats summarizes how an update changed a record's text, in runes.
type DiffStats struct {
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
}

// Save reconciles a prompt into the store. Rejected candidates are not an
// error: Saved is false and Outcome names the reason.
func Save(ctx context.Context, st *store.Store, input SaveInput) (*SaveOutput, error) {
	platform := strings.TrimSpace(input.Platform)
	if platform == "" {
		platform = prompt.DetectPlatform(input.URL)
	}

	res, err := st.Save(ctx, prompt.Candidate{
		Text:      input.Text,
		Platform:  platform,
		URL:       input.URL,
		ForceSave: input.ForceSave,
	})
	if err != nil {
		return nil, err
	}

	out := &SaveOutput{
		Saved:   res.Outcome.Saved(),
		Outcome: res.Outcome.String(),
	}
	if out.Saved {
		rec := res.Record
		out.Record = &rec
	}
	if res.Outcome == prompt.OutcomeUpdated {
		stats := diffStats(res.PreviousText, res.Record.Text)
		out.Diff = &stats
	}
	return out, nil
}

func diffStats(before, after string) DiffStats {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))

	var stats DiffStats
	for _, d := range diffs {
		n := len([]rune(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stats.Inserted += n
		case diffmatchpatch.DiffDelete:
			stats.Deleted += n
		}
	}
	return stats
}
