package prompt

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Storage keys used in the key-value service.
const (
	KeyPrompts  = "prompts"
	KeySettings = "settings"
	KeyFormData = "formData"
)

// Record is a captured prompt. The JSON shape is the persisted and
// export/import format.
type Record struct {
	// ID is a ULID assigned at creation and never changed
	ID string `json:"id" validate:"required"`

	// Text is the captured prompt content, stored untrimmed
	Text string `json:"text"`

	// Platform tags the source site (see DetectPlatform)
	Platform string `json:"platform"`

	// URL is the page URL at capture time (informational)
	URL string `json:"url"`

	// Timestamp is the capture/update time in epoch milliseconds
	Timestamp int64 `json:"timestamp" validate:"gte=0"`

	// Favorite is user-toggled and preserved across merges
	Favorite bool `json:"favorite"`
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID generates a ULID. IDs generated in the same millisecond stay unique
// and sortable.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
