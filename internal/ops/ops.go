package ops

import (
	"time"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/prompt"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 500
	DefaultFormLimit = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// DateRange restricts a listing to records captured within a trailing window.
type DateRange string

const (
	DateAll   DateRange = "all"
	DateToday DateRange = "today"
	DateWeek  DateRange = "week"
	DateMonth DateRange = "month"
)

const day = 24 * time.Hour

// window returns the trailing window for r. ok is false for DateAll.
func (r DateRange) window() (time.Duration, bool, error) {
	switch r {
	case "", DateAll:
		return 0, false, nil
	case DateToday:
		return day, true, nil
	case DateWeek:
		return 7 * day, true, nil
	case DateMonth:
		return 30 * day, true, nil
	default:
		return 0, false, errors.NewInvalidRequest("date must be one of: all, today, week, month")
	}
}

// paginate bounds limit and offset and slices items.
func paginate[T any](items []T, limit, offset, defLimit int) ([]T, Pagination) {
	if limit <= 0 {
		limit = defLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset = max(offset, 0)

	total := len(items)
	start := min(offset, total)
	end := min(start+limit, total)

	page := items[start:end]
	return page, Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: end < total,
		Total:   total,
	}
}

// findRecord returns the index of the record with id, or -1.
func findRecord(records []prompt.Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
