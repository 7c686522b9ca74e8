package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID string // required
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	prompt.Record
	Position int `json:"position"`
}

// Fetch returns a single prompt by id.
func Fetch(ctx context.Context, st *store.Store, input FetchInput) (*FetchOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	records, err := st.Prompts(ctx)
	if err != nil {
		return nil, err
	}
	i := findRecord(records, id)
	if i < 0 {
		return nil, errors.NewNotFound(id)
	}
	return &FetchOutput{Record: records[i], Position: i}, nil
}
