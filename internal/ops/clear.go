package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// ClearInput contains parameters for the Clear operation.
type ClearInput struct {
	Platform      string // optional; only clear this platform
	KeepFavorites bool
}

// ClearOutput contains the result of the Clear operation.
type ClearOutput struct {
	Deleted   int `json:"deleted"`
	Remaining int `json:"remaining"`
}

// Clear removes prompts in bulk. With no filters every prompt is removed.
func Clear(ctx context.Context, st *store.Store, input ClearInput) (*ClearOutput, error) {
	platform := strings.TrimSpace(input.Platform)

	var deleted int
	records, err := st.UpdatePrompts(ctx, func(records []prompt.Record, _ prompt.Settings) ([]prompt.Record, bool, error) {
		keep := make([]prompt.Record, 0, len(records))
		for _, r := range records {
			if platform != "" && r.Platform != platform {
				keep = append(keep, r)
				continue
			}
			if input.KeepFavorites && r.Favorite {
				keep = append(keep, r)
			}
		}
		deleted = len(records) - len(keep)
		return keep, deleted > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return &ClearOutput{Deleted: deleted, Remaining: len(records)}, nil
}
