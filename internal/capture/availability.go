package capture

import "sync"

// Availability tracks whether the store can be reached. It starts Available
// and moves to Unavailable once; there is no way back for the lifetime of
// the controller.
type Availability struct {
	mu     sync.Mutex
	reason error
}

// NewAvailability returns an Available tracker.
func NewAvailability() *Availability {
	return &Availability{}
}

// Available reports whether saves may proceed.
func (a *Availability) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason == nil
}

// MarkUnavailable records err as the reason saves are suspended. It returns
// true only for the call that made the transition.
func (a *Availability) MarkUnavailable(err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reason != nil {
		return false
	}
	if err == nil {
		err = errUnavailable
	}
	a.reason = err
	return true
}

// Err returns the reason saves are suspended, or nil.
func (a *Availability) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}
