// Package store is the prompt store: prompts, settings and form snapshots
// held in the key-value service. All mutations run on a single writer
// goroutine and are committed with compare-and-swap on the key's version, so
// writers in other processes sharing the database are never clobbered.
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/hpungsan/kayko/internal/db"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/form"
	"github.com/hpungsan/kayko/internal/logger"
	"github.com/hpungsan/kayko/internal/prompt"
)

// DefaultMaxRetries bounds compare-and-swap attempts per mutation.
const DefaultMaxRetries = 5

var errClosed = stderrors.New("store closed")

// Store serializes mutations of the prompt store.
type Store struct {
	kv         *db.KV
	defaults   prompt.Settings
	now        func() time.Time
	newID      func() string
	maxRetries int
	log        *logger.Logger

	reqs      chan request
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type request struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	resp chan error
}

// Option configures a Store.
type Option func(*Store)

// WithDefaults sets the settings used when none are stored.
func WithDefaults(s prompt.Settings) Option {
	return func(st *Store) { st.defaults = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// WithIDGenerator overrides prompt.NewID.
func WithIDGenerator(fn func() string) Option {
	return func(st *Store) { st.newID = fn }
}

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(n int) Option {
	return func(st *Store) {
		if n > 0 {
			st.maxRetries = n
		}
	}
}

// New starts the writer goroutine. Call Close to stop it.
func New(kv *db.KV, opts ...Option) *Store {
	s := &Store{
		kv:         kv,
		defaults:   prompt.DefaultSettings(),
		now:        time.Now,
		newID:      prompt.NewID,
		maxRetries: DefaultMaxRetries,
		log:        logger.Named("store"),
		reqs:       make(chan request),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Close stops the writer. Mutations submitted afterwards fail with
// STORAGE_UNAVAILABLE. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped
}

// Defaults returns the settings used when none are stored.
func (s *Store) Defaults() prompt.Settings {
	return s.defaults
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case req := <-s.reqs:
			if req.ctx.Err() != nil {
				req.resp <- errors.NewCancelled("store write")
				continue
			}
			req.resp <- s.exec(req)
		}
	}
}

func (s *Store) exec(req request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("store mutation panicked")
			err = errors.NewInternal(fmt.Errorf("store mutation panicked: %v", r))
		}
	}()
	return req.fn(req.ctx)
}

// do runs fn on the writer goroutine and waits for its result.
func (s *Store) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{ctx: ctx, fn: fn, resp: make(chan error, 1)}
	select {
	case s.reqs <- req:
	case <-s.done:
		return errors.NewStorageUnavailable(errClosed)
	case <-ctx.Done():
		return errors.NewCancelled("store write")
	}
	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return errors.NewCancelled("store write")
	}
}

// casLoop reads key, applies fn and commits with compare-and-swap, retrying
// on version conflicts. fn returning changed=false ends the loop without a
// write. Must run on the writer goroutine.
func (s *Store) casLoop(ctx context.Context, key string, fn func(cur json.RawMessage) (next json.RawMessage, changed bool, err error)) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		entries, err := s.kv.Get(ctx, key)
		if err != nil {
			return err
		}
		cur := entries[key]

		next, changed, err := fn(cur.Value)
		if err != nil || !changed {
			return err
		}

		_, err = s.kv.CompareAndSwap(ctx, key, cur.Version, next)
		if err == nil {
			return nil
		}
		if err != db.ErrVersionConflict {
			return err
		}
		s.log.Debug().Str("key", key).Int("attempt", attempt).Msg("version conflict, retrying")
	}
	return errors.NewConflict(fmt.Sprintf("%s changed concurrently %d times", key, s.maxRetries))
}

// Prompts returns the stored prompts, most recent first.
func (s *Store) Prompts(ctx context.Context) ([]prompt.Record, error) {
	entries, err := s.kv.Get(ctx, prompt.KeyPrompts)
	if err != nil {
		return nil, err
	}
	return decodePrompts(entries[prompt.KeyPrompts].Value)
}

// Settings returns the stored settings merged over the defaults.
func (s *Store) Settings(ctx context.Context) (prompt.Settings, error) {
	entries, err := s.kv.Get(ctx, prompt.KeySettings)
	if err != nil {
		return prompt.Settings{}, err
	}
	st, err := prompt.ParseSettings(entries[prompt.KeySettings].Value, s.defaults)
	if err != nil {
		return prompt.Settings{}, errors.NewInternal(err)
	}
	return st, nil
}

// Forms returns all stored form snapshots keyed by storage key.
func (s *Store) Forms(ctx context.Context) (map[string]form.Snapshot, error) {
	entries, err := s.kv.Get(ctx, prompt.KeyFormData)
	if err != nil {
		return nil, err
	}
	return decodeForms(entries[prompt.KeyFormData].Value)
}

// Save reconciles a captured candidate into the prompt list.
func (s *Store) Save(ctx context.Context, c prompt.Candidate) (prompt.Result, error) {
	var res prompt.Result
	err := s.do(ctx, func(ctx context.Context) error {
		settings, err := s.Settings(ctx)
		if err != nil {
			return err
		}
		return s.casLoop(ctx, prompt.KeyPrompts, func(cur json.RawMessage) (json.RawMessage, bool, error) {
			records, err := decodePrompts(cur)
			if err != nil {
				return nil, false, err
			}
			res = prompt.Reconcile(c, records, settings.MaxPrompts, s.now(), s.newID)
			if !res.Outcome.Saved() {
				return nil, false, nil
			}
			next, err := encode(res.Records)
			return next, err == nil, err
		})
	})
	return res, err
}

// UpdatePrompts applies fn to the prompt list. fn receives the current
// settings and returns the new list and whether anything changed. The result
// is capped to settings.maxPrompts.
func (s *Store) UpdatePrompts(ctx context.Context, fn func(records []prompt.Record, settings prompt.Settings) ([]prompt.Record, bool, error)) ([]prompt.Record, error) {
	var out []prompt.Record
	err := s.do(ctx, func(ctx context.Context) error {
		settings, err := s.Settings(ctx)
		if err != nil {
			return err
		}
		return s.casLoop(ctx, prompt.KeyPrompts, func(cur json.RawMessage) (json.RawMessage, bool, error) {
			records, err := decodePrompts(cur)
			if err != nil {
				return nil, false, err
			}
			next, changed, err := fn(records, settings)
			if err != nil {
				return nil, false, err
			}
			if !changed {
				out = records
				return nil, false, nil
			}
			out = prompt.Truncate(next, settings.MaxPrompts)
			data, err := encode(out)
			return data, err == nil, err
		})
	})
	return out, err
}

// UpdateSettings applies fn to the settings, validates and stores them, then
// trims the prompt list if the cap shrank below its length.
func (s *Store) UpdateSettings(ctx context.Context, fn func(prompt.Settings) (prompt.Settings, error)) (prompt.Settings, error) {
	var out prompt.Settings
	err := s.do(ctx, func(ctx context.Context) error {
		err := s.casLoop(ctx, prompt.KeySettings, func(cur json.RawMessage) (json.RawMessage, bool, error) {
			st, err := prompt.ParseSettings(cur, s.defaults)
			if err != nil {
				return nil, false, errors.NewInternal(err)
			}
			next, err := fn(st)
			if err != nil {
				return nil, false, err
			}
			if next.ExcludedSites == nil {
				next.ExcludedSites = []string{}
			}
			if err := next.Validate(); err != nil {
				return nil, false, errors.NewInvalidRequest(err.Error())
			}
			out = next
			data, err := encode(next)
			return data, err == nil, err
		})
		if err != nil {
			return err
		}

		return s.casLoop(ctx, prompt.KeyPrompts, func(cur json.RawMessage) (json.RawMessage, bool, error) {
			records, err := decodePrompts(cur)
			if err != nil {
				return nil, false, err
			}
			if len(records) <= out.MaxPrompts {
				return nil, false, nil
			}
			data, err := encode(prompt.Truncate(records, out.MaxPrompts))
			return data, err == nil, err
		})
	})
	return out, err
}

// UpdateForms applies fn to the form snapshot map.
func (s *Store) UpdateForms(ctx context.Context, fn func(forms map[string]form.Snapshot) (bool, error)) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.casLoop(ctx, prompt.KeyFormData, func(cur json.RawMessage) (json.RawMessage, bool, error) {
			forms, err := decodeForms(cur)
			if err != nil {
				return nil, false, err
			}
			changed, err := fn(forms)
			if err != nil || !changed {
				return nil, false, err
			}
			data, err := encode(forms)
			return data, err == nil, err
		})
	})
}

func decodePrompts(raw json.RawMessage) ([]prompt.Record, error) {
	records := []prompt.Record{}
	if len(raw) == 0 || string(raw) == "null" {
		return records, nil
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode prompts: %w", err))
	}
	return records, nil
}

func decodeForms(raw json.RawMessage) (map[string]form.Snapshot, error) {
	forms := map[string]form.Snapshot{}
	if len(raw) == 0 || string(raw) == "null" {
		return forms, nil
	}
	if err := json.Unmarshal(raw, &forms); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode formData: %w", err))
	}
	if forms == nil {
		forms = map[string]form.Snapshot{}
	}
	return forms, nil
}

func encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return data, nil
}
