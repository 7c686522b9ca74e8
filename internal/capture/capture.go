// Package capture is the debounced capture controller. Each watched input
// surface gets a session in a registry keyed by surface id; input events
// (re)arm a per-session timer and the timer's expiry saves the surface's
// current content. Enter commits a prompt immediately.
package capture

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/kayko/internal/config"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/events"
	"github.com/hpungsan/kayko/internal/form"
	"github.com/hpungsan/kayko/internal/logger"
	"github.com/hpungsan/kayko/internal/ops"
	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// Default debounce delays.
const (
	DefaultPromptDelay = time.Second
	DefaultFormDelay   = 2 * time.Second
)

// saveTimeout bounds a debounced save.
const saveTimeout = 10 * time.Second

var errUnavailable = stderrors.New("storage unavailable")

// UnavailableNotice is published once when saves are suspended.
const UnavailableNotice = "Kayko lost access to its storage. Automatic saving is paused until kayko is restarted."

// Kind distinguishes prompt surfaces from forms.
type Kind int

const (
	KindPrompt Kind = iota
	KindForm
)

func (k Kind) String() string {
	if k == KindForm {
		return "form"
	}
	return "prompt"
}

// ParseKind maps "prompt" and "form" to a Kind. Empty means prompt.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "prompt":
		return KindPrompt, nil
	case "form":
		return KindForm, nil
	default:
		return 0, errors.NewInvalidRequest(fmt.Sprintf("unknown surface kind: %s", s))
	}
}

// State is a session's lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePendingSave
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingSave:
		return "pending_save"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// EventType names a surface event.
type EventType string

const (
	EventInput   EventType = "input"
	EventKeyUp   EventType = "keyup"
	EventPaste   EventType = "paste"
	EventChange  EventType = "change"
	EventKeyDown EventType = "keydown"
)

// Event is a user interaction reported by a surface.
type Event struct {
	Type  EventType `json:"type"`
	Key   string    `json:"key,omitempty"`
	Shift bool      `json:"shift,omitempty"`
}

// IsCommit reports whether e is Enter without Shift.
func (e Event) IsCommit() bool {
	return e.Type == EventKeyDown && e.Key == "Enter" && !e.Shift
}

func (e Event) isEdit() bool {
	switch e.Type {
	case EventInput, EventKeyUp, EventPaste, EventChange:
		return true
	}
	return false
}

// Surface is a watched input element. Text and Form return the content at
// the time of the call.
type Surface interface {
	ID() string
	Kind() Kind
	URL() string
	Text() string
	Form() form.Descriptor
}

// session is a registry entry. Guarded by Controller.mu.
type session struct {
	surface Surface
	state   State
	timer   *time.Timer
	gen     uint64
}

// Controller owns the session registry.
type Controller struct {
	st          *store.Store
	bus         *events.Bus
	avail       *Availability
	promptDelay time.Duration
	formDelay   time.Duration
	log         *logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	inflight sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithDelays overrides the debounce delays. Non-positive values keep the
// defaults.
func WithDelays(promptDelay, formDelay time.Duration) Option {
	return func(c *Controller) {
		if promptDelay > 0 {
			c.promptDelay = promptDelay
		}
		if formDelay > 0 {
			c.formDelay = formDelay
		}
	}
}

// WithConfig takes the debounce delays from cfg.
func WithConfig(cfg *config.Config) Option {
	return WithDelays(cfg.PromptDebounce(), cfg.FormDebounce())
}

// WithAvailability shares an availability tracker.
func WithAvailability(a *Availability) Option {
	return func(c *Controller) { c.avail = a }
}

// New creates a controller. bus may be nil.
func New(st *store.Store, bus *events.Bus, opts ...Option) *Controller {
	c := &Controller{
		st:          st,
		bus:         bus,
		avail:       NewAvailability(),
		promptDelay: DefaultPromptDelay,
		formDelay:   DefaultFormDelay,
		log:         logger.Named("capture"),
		sessions:    make(map[string]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Availability returns the controller's availability tracker.
func (c *Controller) Availability() *Availability {
	return c.avail
}

// Attach registers s in the Idle state. A surface already registered under
// the same id is detached first.
func (c *Controller) Attach(s Surface) error {
	if s == nil || strings.TrimSpace(s.ID()) == "" {
		return errors.NewInvalidRequest("surface id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.NewInvalidRequest("capture controller is closed")
	}
	if old, ok := c.sessions[s.ID()]; ok {
		c.detachLocked(s.ID(), old)
	}
	c.sessions[s.ID()] = &session{surface: s, state: StateIdle}
	c.log.Debug().Str("surface_id", s.ID()).Str("kind", s.Kind().String()).Msg("surface attached")
	return nil
}

// Detach cancels the session's pending timer and removes it. Events for the
// surface are ignored afterwards. It reports whether the surface was
// registered.
func (c *Controller) Detach(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[id]
	if !ok {
		return false
	}
	c.detachLocked(id, sess)
	c.log.Debug().Str("surface_id", id).Msg("surface detached")
	return true
}

func (c *Controller) detachLocked(id string, sess *session) {
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	sess.state = StateDetached
	sess.gen++
	delete(c.sessions, id)
}

// State returns the state of a registered surface.
func (c *Controller) State(id string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[id]
	if !ok {
		return StateDetached, false
	}
	return sess.state, true
}

// Len returns the number of registered surfaces.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Handle processes an event from surface id. Unknown (or detached) surfaces
// yield NOT_FOUND and change nothing. Storage failures never surface here:
// they suspend saving and are reported once through the bus. A commit is
// not cancelled with ctx; it is bounded by saveTimeout instead.
func (c *Controller) Handle(ctx context.Context, id string, ev Event) error {
	if ev.IsCommit() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()
	}

	c.mu.Lock()
	sess, ok := c.sessions[id]
	if !ok || c.closed {
		c.mu.Unlock()
		return errors.NewNotFound(id)
	}
	surface := sess.surface
	c.mu.Unlock()

	if !c.avail.Available() {
		return nil
	}

	settings, err := c.st.Settings(ctx)
	if err != nil {
		c.fail(ctx, err)
		return nil
	}
	if settings.IsExcluded(surface.URL()) {
		return nil
	}

	switch {
	case ev.IsCommit() && surface.Kind() == KindPrompt:
		text := surface.Text()
		if utf8.RuneCountInString(strings.TrimSpace(text)) < prompt.MinTextLength {
			return nil
		}
		c.savePrompt(ctx, surface, text, true)
	case ev.isEdit():
		enabled := settings.AutoSaveEnabled
		if surface.Kind() == KindForm {
			enabled = settings.FormAutoSaveEnabled
		}
		if !enabled {
			return nil
		}
		c.schedule(id, sess)
	}
	return nil
}

// schedule (re)arms the session timer.
func (c *Controller) schedule(id string, sess *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sessions[id] != sess {
		return
	}
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.gen++
	gen := sess.gen
	delay := c.promptDelay
	if sess.surface.Kind() == KindForm {
		delay = c.formDelay
	}
	sess.state = StatePendingSave
	sess.timer = time.AfterFunc(delay, func() { c.fire(sess, gen) })
}

// fire runs on the timer goroutine. Stale generations are dropped.
func (c *Controller) fire(sess *session, gen uint64) {
	c.mu.Lock()
	if c.closed || sess.gen != gen || sess.state != StatePendingSave {
		c.mu.Unlock()
		return
	}
	sess.state = StateIdle
	sess.timer = nil
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	surface := sess.surface
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	ctx = logger.WithSurface(ctx, surface.ID())

	if !c.avail.Available() {
		return
	}
	if surface.Kind() == KindForm {
		c.saveForm(ctx, surface)
		return
	}
	c.savePrompt(ctx, surface, surface.Text(), false)
}

func (c *Controller) savePrompt(ctx context.Context, surface Surface, text string, force bool) {
	out, err := ops.Save(ctx, c.st, ops.SaveInput{
		Text:      text,
		URL:       surface.URL(),
		ForceSave: force,
	})
	if err != nil {
		c.fail(ctx, err)
		return
	}

	c.log.Debug().
		Str("surface_id", surface.ID()).
		Str("outcome", out.Outcome).
		Bool("force", force).
		Msg("prompt reconciled")
	if !out.Saved {
		return
	}
	c.bus.Publish(events.TypeSaved, events.Saved{
		ID:        out.Record.ID,
		Platform:  out.Record.Platform,
		Outcome:   out.Outcome,
		SurfaceID: surface.ID(),
	})
}

func (c *Controller) saveForm(ctx context.Context, surface Surface) {
	out, err := ops.FormSave(ctx, c.st, ops.FormSaveInput{Form: surface.Form()})
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.log.Debug().
		Str("surface_id", surface.ID()).
		Str("key", out.Key).
		Bool("saved", out.Saved).
		Bool("removed", out.Removed).
		Msg("form snapshot")
	c.bus.Publish(events.TypeFormSaved, out)
}

// fail logs err. A storage failure suspends all saving and publishes a
// one-time notice.
func (c *Controller) fail(ctx context.Context, err error) {
	if !errors.Is(err, errors.ErrStorageUnavailable) {
		logger.C(ctx).Error().Err(err).Str("component", "capture").Msg("save failed")
		return
	}
	if c.avail.MarkUnavailable(err) {
		logger.C(ctx).Warn().Err(err).Str("component", "capture").Msg("storage unavailable, suspending saves")
		c.bus.Publish(events.TypeNotice, events.Notice{Level: "warn", Message: UnavailableNotice})
	}
}

// Close detaches every surface and waits for in-flight saves.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	for id, sess := range c.sessions {
		c.detachLocked(id, sess)
	}
	c.mu.Unlock()
	c.inflight.Wait()
}
