// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

type lifecycle int

const (
	lifecycleOpen lifecycle = iota
	lifecycleClosed
)

// Engine runs submitted jobs one at a time, in submission order, on a single
// background goroutine. The goroutine is started on the first submission that
// finds the queue idle and exits as soon as it observes the queue empty.
type Engine struct {
	name    string
	logger  zerolog.Logger
	metrics *Metrics

	// mu guards queue, running and state. Worker presence is only ever
	// changed while holding it, so a push can never strand a job.
	mu      sync.Mutex
	queue   []*job
	running bool
	state   lifecycle

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an idle engine. No goroutine is started until work arrives.
func New(name string, opts ...Option) *Engine {
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		name:    name,
		logger:  o.logger.With().Str("component", "jobs").Str("engine", name).Logger(),
		metrics: o.metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name returns the engine name.
func (e *Engine) Name() string { return e.name }

// Go enqueues work and returns immediately with a handle to observe it.
func (e *Engine) Go(ctx context.Context, work Work, opts ...SubmitOption) (*Operation, error) {
	j := newJob(ctx, work, opts...)
	if err := e.push(j); err != nil {
		return nil, err
	}
	return newOperation(j), nil
}

// GoFunc enqueues a procedure without result.
func (e *Engine) GoFunc(ctx context.Context, fn func(), opts ...SubmitOption) (*Operation, error) {
	return e.Go(ctx, Action(fn), opts...)
}

// Invoke enqueues work and blocks until it finishes or ctx is done.
func (e *Engine) Invoke(ctx context.Context, work Work, opts ...SubmitOption) (any, error) {
	op, err := e.Go(ctx, work, opts...)
	if err != nil {
		return nil, err
	}
	if err := op.Wait(ctx); err != nil {
		return nil, err
	}
	return op.Value()
}

// Close cancels the worker, aborts every job still queued and rejects any
// later submission with ErrDisposed. A job already running is allowed to
// finish. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.state == lifecycleClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = lifecycleClosed
	e.cancel()
	aborted := e.abortQueuedLocked()
	e.mu.Unlock()

	e.logger.Debug().Int("aborted", aborted).Msg("Engine closed")
	return nil
}

// Len returns the number of jobs waiting in the queue.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Idle reports whether the queue is empty and no worker goroutine exists.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.running && len(e.queue) == 0
}

// push appends j to the queue, starting a worker if none is active. The
// closed check, the append and the spawn decision share one critical section.
func (e *Engine) push(j *job) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == lifecycleClosed {
		return newDisposedError("engine", e.name)
	}

	e.queue = append(e.queue, j)
	e.metrics.jobSubmitted(e.name)
	e.metrics.setQueueDepth(e.name, len(e.queue))

	if !e.running {
		e.running = true
		go e.worker()
	}

	e.logger.Debug().
		Str("job_id", j.id).
		Str("job_name", j.name).
		Int("queue_depth", len(e.queue)).
		Msg("Job enqueued")
	return nil
}

func (e *Engine) worker() {
	e.logger.Debug().Msg("Worker started")

	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			aborted := e.abortQueuedLocked()
			e.running = false
			e.mu.Unlock()
			e.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Int("aborted", aborted).
				Msg("Worker terminated")
		}
	}()

	for {
		j, ok := e.next()
		if !ok {
			e.logger.Debug().Msg("Worker stopped")
			return
		}
		e.execute(j)
	}
}

// next pops the head of the queue. When the queue is empty or the engine is
// closed it clears the worker flag before releasing the lock and reports
// false; the caller must then exit.
func (e *Engine) next() (*job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == lifecycleClosed || e.ctx.Err() != nil {
		e.abortQueuedLocked()
		e.running = false
		return nil, false
	}
	if len(e.queue) == 0 {
		e.running = false
		return nil, false
	}

	j := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	e.metrics.setQueueDepth(e.name, len(e.queue))
	return j, true
}

func (e *Engine) execute(j *job) {
	if !j.run() {
		return
	}

	state := j.State()
	elapsed := j.finishedAt.Sub(j.startedAt)
	e.metrics.jobFinished(e.name, state, elapsed)

	switch state {
	case StateFaulted:
		e.logger.Warn().
			Err(j.err).
			Str("job_id", j.id).
			Str("job_name", j.name).
			Dur("elapsed", elapsed).
			Msg("Job faulted")
	default:
		e.logger.Debug().
			Str("job_id", j.id).
			Str("job_name", j.name).
			Str("state", state.String()).
			Dur("elapsed", elapsed).
			Msg("Job finished")
	}
}

// abortQueuedLocked cancels every queued job and empties the queue. e.mu
// must be held.
func (e *Engine) abortQueuedLocked() int {
	if len(e.queue) == 0 {
		return 0
	}
	cause := newDisposedError("engine", e.name)
	n := 0
	for i, j := range e.queue {
		if j.abort(cause) {
			e.metrics.jobFinished(e.name, StateCanceled, 0)
			n++
		}
		e.queue[i] = nil
	}
	e.queue = nil
	e.metrics.setQueueDepth(e.name, 0)
	return n
}

func (e *Engine) String() string {
	return fmt.Sprintf("jobs.Engine(%s)", e.name)
}
