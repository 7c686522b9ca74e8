package ops

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hpungsan/kayko/internal/prompt"
)

func TestStats(t *testing.T) {
	st := newTestStore(t)

	fav := rec("d", "older favorite", prompt.PlatformGemini, 3*day)
	fav.Favorite = true
	seed(t, st,
		rec("a", "this morning", prompt.PlatformClaude, 3*time.Hour),
		rec("b", "just after midnight", prompt.PlatformClaude, 11*time.Hour+59*time.Minute),
		rec("c", "yesterday evening", prompt.PlatformChatGPT, 13*time.Hour),
		fav,
	)

	out, err := Stats(context.Background(), st, StatsInput{Location: time.UTC})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if out.Total != 4 {
		t.Errorf("Total = %d, want 4", out.Total)
	}
	// testNow is 12:00 UTC: a and b are on the same calendar day, c is not
	// even though it is within 24 hours.
	if out.Today != 2 {
		t.Errorf("Today = %d, want 2", out.Today)
	}
	if out.Favorites != 1 {
		t.Errorf("Favorites = %d, want 1", out.Favorites)
	}
	if out.MaxPrompts != prompt.DefaultMaxPrompts {
		t.Errorf("MaxPrompts = %d, want %d", out.MaxPrompts, prompt.DefaultMaxPrompts)
	}

	want := []PlatformCount{
		{Platform: prompt.PlatformClaude, Count: 2},
		{Platform: prompt.PlatformChatGPT, Count: 1},
		{Platform: prompt.PlatformGemini, Count: 1},
	}
	if diff := cmp.Diff(want, out.ByPlatform); diff != "" {
		t.Errorf("ByPlatform mismatch (-want +got):\n%s", diff)
	}
}

func TestStats_LocationShiftsToday(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, rec("a", "late yesterday UTC", prompt.PlatformClaude, 13*time.Hour))

	// 23:00 UTC on the 14th is already the 15th in UTC+2.
	out, err := Stats(context.Background(), st, StatsInput{Location: time.FixedZone("UTC+2", 2*60*60)})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if out.Today != 1 {
		t.Errorf("Today = %d, want 1", out.Today)
	}
}

func TestStats_Empty(t *testing.T) {
	st := newTestStore(t)

	out, err := Stats(context.Background(), st, StatsInput{})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if out.Total != 0 || out.Today != 0 || len(out.ByPlatform) != 0 {
		t.Errorf("Stats = %+v", out)
	}
	if out.ByPlatform == nil {
		t.Error("ByPlatform = nil, want empty slice")
	}
}
