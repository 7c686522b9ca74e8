package ops

import (
	"context"
	"sort"
	"time"

	"github.com/hpungsan/kayko/internal/store"
)

// StatsInput contains parameters for the Stats operation.
type StatsInput struct {
	// Location decides the calendar day for Today; nil means time.Local.
	Location *time.Location
}

// PlatformCount is the number of prompts captured on one platform.
type PlatformCount struct {
	Platform string `json:"platform"`
	Count    int    `json:"count"`
}

// StatsOutput contains the result of the Stats operation.
type StatsOutput struct {
	Total      int             `json:"total"`
	Today      int             `json:"today"`
	Favorites  int             `json:"favorites"`
	MaxPrompts int             `json:"max_prompts"`
	ByPlatform []PlatformCount `json:"by_platform"`
}

// Stats summarizes the store. Today counts prompts whose timestamp falls on
// the current calendar day.
func Stats(ctx context.Context, st *store.Store, input StatsInput) (*StatsOutput, error) {
	loc := input.Location
	if loc == nil {
		loc = time.Local
	}

	records, err := st.Prompts(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := st.Settings(ctx)
	if err != nil {
		return nil, err
	}

	ny, nm, nd := st.Now().In(loc).Date()
	out := &StatsOutput{
		Total:      len(records),
		MaxPrompts: settings.MaxPrompts,
		ByPlatform: []PlatformCount{},
	}

	counts := make(map[string]int)
	for _, r := range records {
		y, m, d := time.UnixMilli(r.Timestamp).In(loc).Date()
		if y == ny && m == nm && d == nd {
			out.Today++
		}
		if r.Favorite {
			out.Favorites++
		}
		counts[r.Platform]++
	}

	for p, n := range counts {
		out.ByPlatform = append(out.ByPlatform, PlatformCount{Platform: p, Count: n})
	}
	sort.Slice(out.ByPlatform, func(i, j int) bool {
		if out.ByPlatform[i].Count != out.ByPlatform[j].Count {
			return out.ByPlatform[i].Count > out.ByPlatform[j].Count
		}
		return out.ByPlatform[i].Platform < out.ByPlatform[j].Platform
	})
	return out, nil
}
