package surface

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hpungsan/kayko/internal/capture"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/form"
	"github.com/hpungsan/kayko/internal/logger"
)

// MaxDraftBytes caps how much of a draft file is read.
const MaxDraftBytes = 1 << 20

// File is a prompt surface backed by a draft file. Each write to the file
// is reported to the controller as an input event.
type File struct {
	id            string
	path          string
	url           string
	commitOnClose bool
	ctrl          *capture.Controller
	log           *logger.Logger

	mu   sync.RWMutex
	text string
}

// FileOption configures a File.
type FileOption func(*File)

// WithURL sets the page URL the draft is attributed to. Platform detection
// uses it.
func WithURL(u string) FileOption {
	return func(f *File) { f.url = u }
}

// WithCommitOnClose makes Run send Enter with the final content when its
// context ends.
func WithCommitOnClose() FileOption {
	return func(f *File) { f.commitOnClose = true }
}

// NewFile creates a file surface for path.
func NewFile(ctrl *capture.Controller, path string, opts ...FileOption) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	f := &File{
		id:   "file:" + abs,
		path: abs,
		ctrl: ctrl,
		log:  logger.Named("surface"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *File) ID() string { return f.id }
func (f *File) Kind() capture.Kind { return capture.KindPrompt }
func (f *File) URL() string { return f.url }
func (f *File) Form() form.Descriptor { return form.Descriptor{} }
func (f *File) Path() string { return f.path }

func (f *File) Text() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.text
}

// Run attaches the surface and follows the file until ctx is done. The
// parent directory is watched so editors that replace the file on save are
// still seen. A missing file is treated as empty until it is created.
func (f *File) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("cannot watch %s: %v", filepath.Dir(f.path), err))
	}
	if err := f.reload(); err != nil {
		return err
	}
	if err := f.ctrl.Attach(f); err != nil {
		return err
	}
	defer f.ctrl.Detach(f.id)

	f.log.Info().Str("path", f.path).Msg("watching draft")

	for {
		select {
		case <-ctx.Done():
			if f.commitOnClose {
				f.Commit(context.WithoutCancel(ctx))
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			f.handleEvent(ctx, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Error().Err(err).Str("path", f.path).Msg("watch error")
		}
	}
}

func (f *File) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != f.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if err := f.reload(); err != nil {
		f.log.Warn().Err(err).Str("path", f.path).Msg("read draft failed")
		return
	}
	if err := f.ctrl.Handle(ctx, f.id, capture.Event{Type: capture.EventInput}); err != nil {
		f.log.Debug().Err(err).Str("path", f.path).Msg("event dropped")
	}
}

// Commit reports Enter with the current content.
func (f *File) Commit(ctx context.Context) {
	if err := f.reload(); err != nil {
		f.log.Warn().Err(err).Str("path", f.path).Msg("read draft failed")
	}
	if err := f.ctrl.Handle(ctx, f.id, capture.Event{Type: capture.EventKeyDown, Key: "Enter"}); err != nil {
		f.log.Debug().Err(err).Str("path", f.path).Msg("commit dropped")
	}
}

// reload reads the file into the surface. A missing file keeps the last
// content.
func (f *File) reload() error {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewInvalidRequest(fmt.Sprintf("cannot read %s: %v", f.path, err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxDraftBytes))
	if err != nil {
		return errors.NewInternal(err)
	}

	f.mu.Lock()
	f.text = string(data)
	f.mu.Unlock()
	return nil
}
