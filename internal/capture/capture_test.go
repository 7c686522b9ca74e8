package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hpungsan/kayko/internal/db"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/events"
	"github.com/hpungsan/kayko/internal/form"
	"github.com/hpungsan/kayko/internal/ops"
	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// The genai client's opencensus dependency starts a stats worker at init.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

const (
	testDelay = 30 * time.Millisecond
	waitFor   = 2 * time.Second
	tick      = 5 * time.Millisecond
)

type fakeSurface struct {
	id   string
	kind Kind
	url  string

	mu   sync.Mutex
	text string
	form form.Descriptor
}

func (f *fakeSurface) ID() string  { return f.id }
func (f *fakeSurface) Kind() Kind  { return f.kind }
func (f *fakeSurface) URL() string { return f.url }

func (f *fakeSurface) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *fakeSurface) Form() form.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

func (f *fakeSurface) setText(s string) {
	f.mu.Lock()
	f.text = s
	f.mu.Unlock()
}

type harness struct {
	ctrl     *Controller
	st       *store.Store
	bus      *events.Bus
	closeDB  func() error
	received <-chan events.Event
}

func setup(t *testing.T, autoSave bool) *harness {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	st := store.New(db.NewKV(database))
	bus := events.NewBus()
	ctrl := New(st, bus, WithDelays(testDelay, testDelay))

	_, err = ops.UpdateSettings(context.Background(), st, ops.UpdateSettingsInput{AutoSaveEnabled: &autoSave})
	require.NoError(t, err)

	h := &harness{
		ctrl:     ctrl,
		st:       st,
		bus:      bus,
		closeDB:  database.Close,
		received: bus.Subscribe("test"),
	}
	t.Cleanup(func() {
		ctrl.Close()
		st.Close()
		database.Close()
	})
	return h
}

func (h *harness) prompts(t *testing.T) []prompt.Record {
	t.Helper()
	records, err := h.st.Prompts(context.Background())
	require.NoError(t, err)
	return records
}

func promptSurface(id, url string) *fakeSurface {
	return &fakeSurface{id: id, kind: KindPrompt, url: url}
}

func input() Event { return Event{Type: EventInput} }
func enter() Event { return Event{Type: EventKeyDown, Key: "Enter"} }

func TestController_DebounceCoalescesEdits(t *testing.T) {
	h := setup(t, true)
	ctx := context.Background()
	s := promptSurface("s1", "https://claude.ai/new")
	require.NoError(t, h.ctrl.Attach(s))

	for _, text := range []string{"Wri", "Write a", "Write a limerick"} {
		s.setText(text)
		require.NoError(t, h.ctrl.Handle(ctx, "s1", input()))
	}
	state, _ := h.ctrl.State("s1")
	assert.Equal(t, StatePendingSave, state)

	require.Eventually(t, func() bool { return len(h.prompts(t)) == 1 }, waitFor, tick)
	records := h.prompts(t)
	assert.Equal(t, "Write a limerick", records[0].Text)
	assert.Equal(t, prompt.PlatformClaude, records[0].Platform)

	require.Eventually(t, func() bool {
		state, _ := h.ctrl.State("s1")
		return state == StateIdle
	}, waitFor, tick)
}

func TestController_AutoSaveDisabledStaysIdle(t *testing.T) {
	h := setup(t, false)
	s := promptSurface("s1", "https://chatgpt.com/")
	require.NoError(t, h.ctrl.Attach(s))

	s.setText("Nothing should be saved")
	require.NoError(t, h.ctrl.Handle(context.Background(), "s1", input()))

	state, _ := h.ctrl.State("s1")
	assert.Equal(t, StateIdle, state)
	time.Sleep(4 * testDelay)
	assert.Empty(t, h.prompts(t))
}

func TestController_EnterCommitsImmediately(t *testing.T) {
	h := setup(t, false)
	s := promptSurface("s1", "https://chatgpt.com/")
	require.NoError(t, h.ctrl.Attach(s))

	s.setText("Final answer please")
	require.NoError(t, h.ctrl.Handle(context.Background(), "s1", enter()))

	records := h.prompts(t)
	require.Len(t, records, 1, "Enter must save synchronously even with auto-save off")
	assert.Equal(t, "Final answer please", records[0].Text)

	select {
	case ev := <-h.received:
		assert.Equal(t, events.TypeSaved, ev.Type)
		saved := ev.Data.(events.Saved)
		assert.Equal(t, "s1", saved.SurfaceID)
		assert.Equal(t, "created", saved.Outcome)
	case <-time.After(waitFor):
		t.Fatal("no saved event published")
	}
}

func TestController_EnterSurvivesCancelledRequest(t *testing.T) {
	h := setup(t, false)
	s := promptSurface("s1", "https://chatgpt.com/")
	require.NoError(t, h.ctrl.Attach(s))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.setText("Submit and navigate away")
	require.NoError(t, h.ctrl.Handle(ctx, "s1", enter()))

	records := h.prompts(t)
	require.Len(t, records, 1)
	assert.Equal(t, "Submit and navigate away", records[0].Text)
	assert.True(t, h.ctrl.Availability().Available())
}

func TestController_EnterIgnoresShortTextAndShift(t *testing.T) {
	h := setup(t, true)
	ctx := context.Background()
	s := promptSurface("s1", "https://chatgpt.com/")
	require.NoError(t, h.ctrl.Attach(s))

	s.setText("  ok ")
	require.NoError(t, h.ctrl.Handle(ctx, "s1", enter()))
	s.setText("a longer line")
	require.NoError(t, h.ctrl.Handle(ctx, "s1", Event{Type: EventKeyDown, Key: "Enter", Shift: true}))

	assert.Empty(t, h.prompts(t))
	state, _ := h.ctrl.State("s1")
	assert.Equal(t, StateIdle, state, "keydown is not an edit event")
}

func TestController_EnterDoesNotCancelPendingTimer(t *testing.T) {
	h := setup(t, true)
	ctx := context.Background()
	s := promptSurface("s1", "https://claude.ai/new")
	require.NoError(t, h.ctrl.Attach(s))

	s.setText("Summarize the meeting notes")
	require.NoError(t, h.ctrl.Handle(ctx, "s1", input()))
	require.NoError(t, h.ctrl.Handle(ctx, "s1", enter()))

	require.Len(t, h.prompts(t), 1)
	state, _ := h.ctrl.State("s1")
	assert.Equal(t, StatePendingSave, state)

	// The timer still fires; its save is rejected as a duplicate.
	require.Eventually(t, func() bool {
		state, _ := h.ctrl.State("s1")
		return state == StateIdle
	}, waitFor, tick)
	time.Sleep(2 * testDelay)
	assert.Len(t, h.prompts(t), 1)
}

func TestController_DetachCancelsPendingSave(t *testing.T) {
	h := setup(t, true)
	ctx := context.Background()
	s := promptSurface("s1", "https://claude.ai/new")
	require.NoError(t, h.ctrl.Attach(s))

	s.setText("Discarded before the timer fires")
	require.NoError(t, h.ctrl.Handle(ctx, "s1", input()))
	require.True(t, h.ctrl.Detach("s1"))
	require.False(t, h.ctrl.Detach("s1"))

	time.Sleep(4 * testDelay)
	assert.Empty(t, h.prompts(t))

	err := h.ctrl.Handle(ctx, "s1", input())
	assert.True(t, errors.Is(err, errors.ErrNotFound), "err = %v", err)
	_, ok := h.ctrl.State("s1")
	assert.False(t, ok)
}

func TestController_ExcludedSiteIgnored(t *testing.T) {
	h := setup(t, true)
	ctx := context.Background()
	sites := []string{"claude.ai"}
	_, err := ops.UpdateSettings(ctx, h.st, ops.UpdateSettingsInput{ExcludedSites: &sites})
	require.NoError(t, err)

	s := promptSurface("s1", "https://claude.ai/new")
	require.NoError(t, h.ctrl.Attach(s))
	s.setText("Private drafting")
	require.NoError(t, h.ctrl.Handle(ctx, "s1", input()))
	require.NoError(t, h.ctrl.Handle(ctx, "s1", enter()))

	time.Sleep(4 * testDelay)
	assert.Empty(t, h.prompts(t))
}

func TestController_SurfacesAreIndependent(t *testing.T) {
	h := setup(t, true)
	ctx := context.Background()
	a := promptSurface("a", "https://claude.ai/new")
	b := promptSurface("b", "https://gemini.google.com/app")
	require.NoError(t, h.ctrl.Attach(a))
	require.NoError(t, h.ctrl.Attach(b))
	assert.Equal(t, 2, h.ctrl.Len())

	a.setText("Translate this paragraph")
	b.setText("Translate this paragraph")
	require.NoError(t, h.ctrl.Handle(ctx, "a", input()))
	require.NoError(t, h.ctrl.Handle(ctx, "b", input()))
	h.ctrl.Detach("a")

	require.Eventually(t, func() bool { return len(h.prompts(t)) == 1 }, waitFor, tick)
	time.Sleep(2 * testDelay)
	records := h.prompts(t)
	require.Len(t, records, 1)
	assert.Equal(t, prompt.PlatformGemini, records[0].Platform)
}

func TestController_AttachReplacesSession(t *testing.T) {
	h := setup(t, true)
	ctx := context.Background()
	old := promptSurface("s1", "https://claude.ai/new")
	require.NoError(t, h.ctrl.Attach(old))
	old.setText("old surface text")
	require.NoError(t, h.ctrl.Handle(ctx, "s1", input()))

	fresh := promptSurface("s1", "https://chatgpt.com/")
	require.NoError(t, h.ctrl.Attach(fresh))
	state, _ := h.ctrl.State("s1")
	assert.Equal(t, StateIdle, state, "replacement cancels the old timer")

	time.Sleep(4 * testDelay)
	assert.Empty(t, h.prompts(t))

	assert.True(t, errors.Is(h.ctrl.Attach(promptSurface("", "")), errors.ErrInvalidRequest))
}

func TestController_FormSurface(t *testing.T) {
	h := setup(t, false)
	s := &fakeSurface{id: "f1", kind: KindForm, url: "https://shop.test/contact", form: form.Descriptor{
		PageURL: "https://shop.test/contact",
		ID:      "contact",
		Fields: []form.FieldInput{
			{Tag: "input", Type: "email", Name: "email", Value: "ada@example.test"},
			{Tag: "input", Type: "password", Name: "pw", Value: "secret"},
		},
	}}
	require.NoError(t, h.ctrl.Attach(s))
	require.NoError(t, h.ctrl.Handle(context.Background(), "f1", Event{Type: EventChange}))

	require.Eventually(t, func() bool {
		forms, err := h.st.Forms(context.Background())
		return err == nil && len(forms) == 1
	}, waitFor, tick)

	forms, _ := h.st.Forms(context.Background())
	snap := forms["https://shop.test/contact#contact"]
	assert.Equal(t, "ada@example.test", snap.Fields["email"].Value.Value)
	assert.NotContains(t, snap.Fields, "pw")
	assert.Empty(t, h.prompts(t), "form autosave does not depend on prompt autosave")
}

func TestController_StorageUnavailableSuspendsOnce(t *testing.T) {
	h := setup(t, true)
	ctx := context.Background()
	s := promptSurface("s1", "https://claude.ai/new")
	require.NoError(t, h.ctrl.Attach(s))
	require.NoError(t, h.closeDB())

	s.setText("This cannot be stored")
	require.NoError(t, h.ctrl.Handle(ctx, "s1", input()))
	require.NoError(t, h.ctrl.Handle(ctx, "s1", enter()))
	require.NoError(t, h.ctrl.Handle(ctx, "s1", input()))

	assert.False(t, h.ctrl.Availability().Available())
	assert.True(t, errors.Is(h.ctrl.Availability().Err(), errors.ErrStorageUnavailable))

	notices := 0
	timeout := time.After(4 * testDelay)
	for done := false; !done; {
		select {
		case ev := <-h.received:
			if ev.Type == events.TypeNotice {
				notices++
				assert.Equal(t, UnavailableNotice, ev.Data.(events.Notice).Message)
			}
		case <-timeout:
			done = true
		}
	}
	assert.Equal(t, 1, notices)
}

func TestController_CloseStopsTimers(t *testing.T) {
	h := setup(t, true)
	s := promptSurface("s1", "https://claude.ai/new")
	require.NoError(t, h.ctrl.Attach(s))
	s.setText("Closed before the timer fires")
	require.NoError(t, h.ctrl.Handle(context.Background(), "s1", input()))

	h.ctrl.Close()
	assert.Equal(t, 0, h.ctrl.Len())
	time.Sleep(4 * testDelay)
	assert.Empty(t, h.prompts(t))
	assert.True(t, errors.Is(h.ctrl.Attach(s), errors.ErrInvalidRequest))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindPrompt, k)

	k, err = ParseKind("Form")
	require.NoError(t, err)
	assert.Equal(t, KindForm, k)

	_, err = ParseKind("canvas")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestAvailability(t *testing.T) {
	a := NewAvailability()
	assert.True(t, a.Available())
	assert.Nil(t, a.Err())

	assert.True(t, a.MarkUnavailable(nil))
	assert.False(t, a.MarkUnavailable(errors.NewStorageUnavailable(nil)))
	assert.False(t, a.Available())
	assert.Equal(t, errUnavailable, a.Err())
}
