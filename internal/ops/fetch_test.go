package ops

import (
	"context"
	"testing"
	"time"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/prompt"
)

func TestFetch_ByID(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		rec("a", "first prompt", prompt.PlatformClaude, time.Minute),
		rec("b", "second prompt", prompt.PlatformGemini, time.Hour),
	)

	out, err := Fetch(context.Background(), st, FetchInput{ID: " b "})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if out.ID != "b" || out.Text != "second prompt" {
		t.Errorf("Fetch = %+v", out)
	}
	if out.Position != 1 {
		t.Errorf("Position = %d, want 1", out.Position)
	}
}

func TestFetch_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := Fetch(context.Background(), st, FetchInput{ID: "missing"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestFetch_IDRequired(t *testing.T) {
	st := newTestStore(t)

	_, err := Fetch(context.Background(), st, FetchInput{ID: "  "})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}
