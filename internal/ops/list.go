package ops

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Query         string    // optional; matches text or platform, case-insensitive
	Platform      string    // optional; exact platform tag
	Date          DateRange // optional, default: all
	FavoritesOnly bool
	Limit         int // default: 20, max: 500
	Offset        int // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []prompt.Record `json:"items"`
	Pagination Pagination      `json:"pagination"`
	Sort       string          `json:"sort"`
}

// List returns stored prompts, most recent first, filtered and paginated.
func List(ctx context.Context, st *store.Store, input ListInput) (*ListOutput, error) {
	window, windowed, err := input.Date.window()
	if err != nil {
		return nil, err
	}

	records, err := st.Prompts(ctx)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	query := fold.String(input.Query)
	platform := strings.TrimSpace(input.Platform)
	now := prompt.Millis(st.Now())

	filtered := make([]prompt.Record, 0, len(records))
	for _, r := range records {
		if query != "" &&
			!strings.Contains(fold.String(r.Text), query) &&
			!strings.Contains(fold.String(r.Platform), query) {
			continue
		}
		if platform != "" && r.Platform != platform {
			continue
		}
		if windowed && now-r.Timestamp >= window.Milliseconds() {
			continue
		}
		if input.FavoritesOnly && !r.Favorite {
			continue
		}
		filtered = append(filtered, r)
	}

	items, page := paginate(filtered, input.Limit, input.Offset, DefaultListLimit)
	return &ListOutput{
		Items:      items,
		Pagination: page,
		Sort:       "recent_first",
	}, nil
}
