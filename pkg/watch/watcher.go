// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package watch reports debounced file system changes through a delay engine.
//
// Every fsnotify event for a path schedules a delayed job on a shared
// jobs.DelayEngine. A later event for the same path cancels the job scheduled
// before it, so a burst of writes produces a single Change once the path has
// been quiet for the debounce period. Handlers therefore run one at a time,
// in deadline order.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/vulntor/slimjob/pkg/jobs"
)

// LockFileName is the lock file created in the watched directory when
// locking is enabled.
const LockFileName = ".slimjob.lock"

var (
	// ErrLocked indicates another watcher already holds the directory lock.
	ErrLocked = errors.New("directory is locked by another watcher")
	// ErrNotDirectory indicates the watch root is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

// Change is a coalesced set of events for one path.
type Change struct {
	Path   string
	Ops    fsnotify.Op
	Events int
}

// Handler is called for each coalesced change. It runs on the engine's
// worker and must honor ctx.
type Handler func(ctx context.Context, c Change) error

// Options configures a Watcher.
type Options struct {
	Debounce  time.Duration // defaults to 200ms
	Recursive bool
	Lock      bool
	Logger    zerolog.Logger
}

type pendingChange struct {
	ops    fsnotify.Op
	events int
	cancel context.CancelFunc
}

// Watcher watches a directory and hands debounced changes to a Handler.
type Watcher struct {
	root    string
	engine  *jobs.DelayEngine
	handler Handler
	opts    Options
	logger  zerolog.Logger

	fsw  *fsnotify.Watcher
	lock *flock.Flock

	mu      sync.Mutex
	pending map[string]*pendingChange
	closed  bool
}

// New creates a Watcher for root. Jobs are submitted to engine, which the
// caller owns.
func New(root string, engine *jobs.DelayEngine, handler Handler, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotDirectory)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:    abs,
		engine:  engine,
		handler: handler,
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "watch").Str("root", abs).Logger(),
		fsw:     fsw,
		pending: make(map[string]*pendingChange),
	}, nil
}

// Root returns the absolute path being watched.
func (w *Watcher) Root() string { return w.root }

// Pending returns the number of paths with a change waiting out the debounce
// period.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Start takes the directory lock if enabled, registers the watches and
// dispatches events until ctx is done. It blocks, so run it in a goroutine
// when the caller has other work:
//
//	go watcher.Start(ctx)
func (w *Watcher) Start(ctx context.Context) error {
	defer func() {
		if err := w.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
	}()

	if w.opts.Lock {
		if err := w.acquireLock(); err != nil {
			return err
		}
	}

	if err := w.addTree(w.root); err != nil {
		w.logger.Error().Err(err).Msg("Failed to watch directory")
		return err
	}

	w.logger.Info().
		Dur("debounce", w.opts.Debounce).
		Bool("recursive", w.opts.Recursive).
		Msg("Started watching")
	defer w.logger.Info().Msg("Stopped watching")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

// Close stops watching, cancels changes still in their debounce period and
// releases the lock. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, p := range w.pending {
		p.cancel()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	if w.lock != nil {
		if uerr := w.lock.Unlock(); uerr != nil {
			err = errors.Join(err, uerr)
		}
		_ = os.Remove(w.lock.Path())
	}
	return err
}

func (w *Watcher) acquireLock() error {
	lock := flock.New(filepath.Join(w.root, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%s: %w", w.root, ErrLocked)
	}
	w.lock = lock
	w.logger.Debug().Str("lock", lock.Path()).Msg("Acquired directory lock")
	return nil
}

func (w *Watcher) addTree(root string) error {
	if !w.opts.Recursive {
		return w.fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Base(event.Name) == LockFileName {
		return
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
		return
	}

	if w.opts.Recursive && event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
			}
		}
	}

	w.logger.Debug().
		Str("op", event.Op.String()).
		Str("file", event.Name).
		Msg("Detected change")

	w.schedule(ctx, event)
}

// schedule supersedes any change for the same path that is still waiting and
// submits a new delayed job carrying the merged ops.
func (w *Watcher) schedule(ctx context.Context, event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	entry := &pendingChange{ops: event.Op, events: 1}
	if prev, ok := w.pending[event.Name]; ok {
		prev.cancel()
		entry.ops |= prev.ops
		entry.events += prev.events
	}

	jobCtx, cancel := context.WithCancel(ctx)
	entry.cancel = cancel
	w.pending[event.Name] = entry

	path := event.Name
	_, err := w.engine.GoAfter(jobCtx, w.opts.Debounce, func(ctx context.Context) (any, error) {
		change, ok := w.claim(path, entry)
		if !ok {
			return nil, jobs.ErrCanceled
		}
		defer entry.cancel()
		return nil, w.handler(ctx, change)
	}, jobs.Named("watch:"+filepath.Base(path)))
	if err != nil {
		cancel()
		delete(w.pending, path)
		w.logger.Error().Err(err).Str("file", path).Msg("Failed to schedule change")
	}
}

// claim removes entry from the pending set if it is still the latest change
// for path.
func (w *Watcher) claim(path string, entry *pendingChange) (Change, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[path] != entry {
		return Change{}, false
	}
	delete(w.pending, path)
	return Change{Path: path, Ops: entry.ops, Events: entry.events}, true
}
