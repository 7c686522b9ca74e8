package ops

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/prompt"
)

func ids(records []prompt.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestList_Filters(t *testing.T) {
	st := newTestStore(t)

	fav := rec("p4", "Plan a TRIP to Lisbon", prompt.PlatformChatGPT, 10*day)
	fav.Favorite = true
	seed(t, st,
		rec("p1", "Refactor this Go function", prompt.PlatformClaude, time.Hour),
		rec("p2", "Explain goroutines", prompt.PlatformChatGPT, 2*day),
		rec("p3", "Draft a cover letter", prompt.PlatformGemini, 6*day),
		fav,
		rec("p5", "Résumé tips for Berlin jobs", prompt.PlatformClaude, 40*day),
	)

	tests := []struct {
		name  string
		input ListInput
		want  []string
	}{
		{"all", ListInput{}, []string{"p1", "p2", "p3", "p4", "p5"}},
		{"query matches text case-insensitively", ListInput{Query: "trip"}, []string{"p4"}},
		{"query matches platform", ListInput{Query: "chatgpt"}, []string{"p2", "p4"}},
		{"query folds non-ascii case", ListInput{Query: "RÉSUMÉ TIPS"}, []string{"p5"}},
		{"platform exact", ListInput{Platform: prompt.PlatformClaude}, []string{"p1", "p5"}},
		{"platform is not a substring match", ListInput{Platform: "Claud"}, []string{}},
		{"today", ListInput{Date: DateToday}, []string{"p1"}},
		{"week", ListInput{Date: DateWeek}, []string{"p1", "p2", "p3"}},
		{"month", ListInput{Date: DateMonth}, []string{"p1", "p2", "p3", "p4"}},
		{"favorites", ListInput{FavoritesOnly: true}, []string{"p4"}},
		{"combined", ListInput{Query: "go", Platform: prompt.PlatformChatGPT, Date: DateWeek}, []string{"p2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := List(context.Background(), st, tt.input)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(out.Items)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
			if out.Pagination.Total != len(tt.want) {
				t.Errorf("Total = %d, want %d", out.Pagination.Total, len(tt.want))
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	st := newTestStore(t)
	var records []prompt.Record
	for i := 0; i < 25; i++ {
		records = append(records, rec(string(rune('a'+i)), "prompt text", prompt.PlatformClaude, time.Duration(i)*time.Minute))
	}
	seed(t, st, records...)

	out, err := List(context.Background(), st, ListInput{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != DefaultListLimit {
		t.Errorf("len(Items) = %d, want %d", len(out.Items), DefaultListLimit)
	}
	if !out.Pagination.HasMore {
		t.Error("HasMore = false, want true")
	}
	if out.Sort != "recent_first" {
		t.Errorf("Sort = %q", out.Sort)
	}

	out, err = List(context.Background(), st, ListInput{Limit: 10, Offset: 20})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 5 || out.Pagination.HasMore {
		t.Errorf("last page: len=%d HasMore=%v", len(out.Items), out.Pagination.HasMore)
	}
	if out.Items[0].ID != "u" {
		t.Errorf("Items[0].ID = %q, want u", out.Items[0].ID)
	}
}

func TestList_Empty(t *testing.T) {
	st := newTestStore(t)

	out, err := List(context.Background(), st, ListInput{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if out.Items == nil {
		t.Error("Items = nil, want empty slice")
	}
	if out.Pagination.Total != 0 || out.Pagination.HasMore {
		t.Errorf("Pagination = %+v", out.Pagination)
	}
}

func TestList_InvalidDate(t *testing.T) {
	st := newTestStore(t)

	_, err := List(context.Background(), st, ListInput{Date: "fortnight"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}
