// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the completion state of a job.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFaulted
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// IsTerminal reports whether s is one of Completed, Faulted or Canceled.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFaulted || s == StateCanceled
}

// Work is a unit of work. The context is the one supplied at submission.
type Work func(ctx context.Context) (any, error)

// Action adapts a procedure without result or error to Work.
func Action(fn func()) Work {
	return func(context.Context) (any, error) {
		fn()
		return nil, nil
	}
}

// ActionErr adapts a procedure returning only an error to Work.
func ActionErr(fn func(ctx context.Context) error) Work {
	return func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	}
}

// SubmitOption customizes a single submission.
type SubmitOption func(*job)

// Named sets the job name used in logs, metrics and reports.
func Named(name string) SubmitOption {
	return func(j *job) {
		j.name = name
	}
}

// job is owned by exactly one engine queue or delay list until it reaches a
// terminal state. run and abort race through a CAS on state; whichever wins
// is the only path that closes done.
type job struct {
	id   string
	name string
	ctx  context.Context
	work Work

	state atomic.Int32
	done  chan struct{}

	// Written before done is closed, read only after.
	value      any
	err        error
	submitted  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

func newJob(ctx context.Context, work Work, opts ...SubmitOption) *job {
	if ctx == nil {
		ctx = context.Background()
	}
	j := &job{
		id:        uuid.NewString(),
		ctx:       ctx,
		work:      work,
		done:      make(chan struct{}),
		submitted: time.Now(),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.name == "" {
		j.name = j.id[:8]
	}
	return j
}

func (j *job) State() State {
	return State(j.state.Load())
}

// run executes the work item on the worker goroutine. It returns false when
// the job had already been aborted.
func (j *job) run() bool {
	if !j.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return false
	}
	j.startedAt = time.Now()

	if err := j.ctx.Err(); err != nil {
		j.finish(StateCanceled, nil, newCanceledError(context.Cause(j.ctx)))
		return true
	}

	value, err := j.invoke()
	switch {
	case err == nil:
		j.finish(StateCompleted, value, nil)
	case j.isCooperativeCancel(err):
		j.finish(StateCanceled, nil, newCanceledError(err))
	default:
		j.finish(StateFaulted, nil, newFaultedError(err))
	}
	return true
}

func (j *job) invoke() (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return j.work(j.ctx)
}

func (j *job) isCooperativeCancel(err error) bool {
	if errors.Is(err, ErrCanceled) {
		return true
	}
	if j.ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// abort cancels a job that never reached the worker. It returns false if the
// job had already started or finished.
func (j *job) abort(cause error) bool {
	if !j.state.CompareAndSwap(int32(StatePending), int32(StateCanceled)) {
		return false
	}
	j.err = newCanceledError(cause)
	j.finishedAt = time.Now()
	close(j.done)
	return true
}

func (j *job) finish(state State, value any, err error) {
	j.value = value
	j.err = err
	j.finishedAt = time.Now()
	j.state.Store(int32(state))
	close(j.done)
}

func (j *job) isDone() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}
