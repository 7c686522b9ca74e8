// Package surface provides capture.Surface implementations: remote surfaces
// whose content is pushed by the browser extension over HTTP, and file
// surfaces that follow a draft file on disk.
package surface

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hpungsan/kayko/internal/capture"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/form"
)

// Remote holds the last reported state of a page element.
type Remote struct {
	id   string
	kind capture.Kind

	mu   sync.RWMutex
	url  string
	text string
	form form.Descriptor
}

// NewRemote creates a remote surface. An empty id is replaced by a random one.
func NewRemote(id string, kind capture.Kind) *Remote {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	return &Remote{id: id, kind: kind}
}

func (r *Remote) ID() string { return r.id }
func (r *Remote) Kind() capture.Kind { return r.kind }

func (r *Remote) URL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.url
}

func (r *Remote) Text() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.text
}

func (r *Remote) Form() form.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.form
}

// apply copies the fields present in rep.
func (r *Remote) apply(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rep.URL != "" {
		r.url = rep.URL
	}
	if rep.Text != nil {
		r.text = *rep.Text
	}
	if rep.Form != nil {
		r.form = *rep.Form
		if r.url == "" {
			r.url = rep.Form.PageURL
		}
	}
}

// Report is one message from the extension: the element's current content
// plus the event that produced it. Absent fields keep their last value.
type Report struct {
	Kind  string           `json:"kind,omitempty"`
	URL   string           `json:"url,omitempty"`
	Text  *string          `json:"text,omitempty"`
	Form  *form.Descriptor `json:"form,omitempty"`
	Event capture.Event    `json:"event"`
}

// ReportOutput is returned for each accepted report.
type ReportOutput struct {
	SurfaceID string `json:"surface_id"`
	State     string `json:"state"`
}

// Hub maps surface ids to remote surfaces and forwards their events to the
// capture controller. A closed id stays closed: later reports for it are
// NOT_FOUND.
type Hub struct {
	ctrl *capture.Controller

	mu       sync.Mutex
	surfaces map[string]*Remote
	closed   map[string]struct{}
}

// NewHub creates a hub over ctrl.
func NewHub(ctrl *capture.Controller) *Hub {
	return &Hub{
		ctrl:     ctrl,
		surfaces: make(map[string]*Remote),
		closed:   make(map[string]struct{}),
	}
}

// Report updates (registering on first sight) the surface id and then
// hands rep.Event to the controller. A report whose kind differs from the
// registered surface replaces it.
func (h *Hub) Report(ctx context.Context, id string, rep Report) (*ReportOutput, error) {
	kind, err := capture.ParseKind(rep.Kind)
	if err != nil {
		return nil, err
	}

	r, err := h.lookup(id, kind)
	if err != nil {
		return nil, err
	}
	r.apply(rep)

	if rep.Event.Type != "" {
		if err := h.ctrl.Handle(ctx, r.ID(), rep.Event); err != nil {
			return nil, err
		}
	}

	state, _ := h.ctrl.State(r.ID())
	return &ReportOutput{SurfaceID: r.ID(), State: state.String()}, nil
}

func (h *Hub) lookup(id string, kind capture.Kind) (*Remote, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, gone := h.closed[id]; gone {
		return nil, errors.NewNotFound(id)
	}
	if r, ok := h.surfaces[id]; ok && r.kind == kind {
		if _, attached := h.ctrl.State(id); attached {
			return r, nil
		}
	}

	r := NewRemote(id, kind)
	if err := h.ctrl.Attach(r); err != nil {
		return nil, err
	}
	h.surfaces[r.ID()] = r
	return r, nil
}

// Close detaches surface id for good. Unknown or already closed ids are
// NOT_FOUND.
func (h *Hub) Close(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.surfaces[id]
	delete(h.surfaces, id)
	detached := h.ctrl.Detach(id)
	if !ok && !detached {
		return errors.NewNotFound(id)
	}
	h.closed[id] = struct{}{}
	return nil
}

// Len returns the number of known remote surfaces.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.surfaces)
}
