package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID string // required
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete removes a prompt by id.
func Delete(ctx context.Context, st *store.Store, input DeleteInput) (*DeleteOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	_, err := st.UpdatePrompts(ctx, func(records []prompt.Record, _ prompt.Settings) ([]prompt.Record, bool, error) {
		i := findRecord(records, id)
		if i < 0 {
			return nil, false, errors.NewNotFound(id)
		}
		next := make([]prompt.Record, 0, len(records)-1)
		next = append(next, records[:i]...)
		next = append(next, records[i+1:]...)
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: id}, nil
}

// FavoriteInput contains parameters for the ToggleFavorite operation.
type FavoriteInput struct {
	ID string // required

	// Favorite sets the flag explicitly; nil toggles it.
	Favorite *bool
}

// FavoriteOutput contains the result of the ToggleFavorite operation.
type FavoriteOutput struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
}

// ToggleFavorite flips or sets a prompt's favorite flag. Position and
// timestamp are unchanged.
func ToggleFavorite(ctx context.Context, st *store.Store, input FavoriteInput) (*FavoriteOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	var fav bool
	_, err := st.UpdatePrompts(ctx, func(records []prompt.Record, _ prompt.Settings) ([]prompt.Record, bool, error) {
		i := findRecord(records, id)
		if i < 0 {
			return nil, false, errors.NewNotFound(id)
		}
		fav = !records[i].Favorite
		if input.Favorite != nil {
			fav = *input.Favorite
		}
		if fav == records[i].Favorite {
			return records, false, nil
		}
		next := append([]prompt.Record(nil), records...)
		next[i].Favorite = fav
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	return &FavoriteOutput{ID: id, Favorite: fav}, nil
}
