// Package events fans store changes and capture notices out to UI subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a single notification delivered to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Event types
const (
	TypeKeysChanged = "keys_changed"
	TypeSaved       = "prompt_saved"
	TypeNotice      = "notice"
	TypeFormSaved   = "form_saved"
)

const subscriberBuffer = 64

// Bus manages event distribution. The zero value is not usable; call NewBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]chan Event)}
}

// Subscribe registers name and returns its buffered channel. Subscribing an
// existing name replaces (and closes) the previous channel.
func (b *Bus) Subscribe(name string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subscribers[name]; ok {
		close(old)
	}
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[name] = ch
	return ch
}

// Unsubscribe removes name and closes its channel.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[name]; ok {
		delete(b.subscribers, name)
		close(ch)
	}
}

// Publish broadcasts an event to all subscribers. Slow subscribers whose
// buffer is full miss the event; Publish never blocks.
func (b *Bus) Publish(eventType string, data any) {
	if b == nil {
		return
	}
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// KeysChanged is the payload of TypeKeysChanged.
type KeysChanged struct {
	Keys []string `json:"keys"`
}

// Saved is the payload of TypeSaved.
type Saved struct {
	ID        string `json:"id"`
	Platform  string `json:"platform"`
	Outcome   string `json:"outcome"`
	SurfaceID string `json:"surface_id,omitempty"`
}

// Notice is the payload of TypeNotice.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}
