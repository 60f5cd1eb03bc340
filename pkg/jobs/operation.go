package jobs

import (
	"context"
	"time"
)

// Operation is the caller's view of a submitted job. It never changes
// scheduling state; it only observes completion.
type Operation struct {
	j *job
}

func newOperation(j *job) *Operation {
	return &Operation{j: j}
}

// ID returns the job's unique identifier.
func (o *Operation) ID() string { return o.j.id }

// Name returns the job's name.
func (o *Operation) Name() string { return o.j.name }

// State returns the job's current state.
func (o *Operation) State() State { return o.j.State() }

// Done returns a channel closed once the job reaches a terminal state.
func (o *Operation) Done() <-chan struct{} { return o.j.done }

// Wait blocks until the job is terminal and returns its error, or returns
// ctx.Err() if ctx is done first. Canceling ctx stops the wait only; the job
// itself is unaffected.
func (o *Operation) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.j.isDone() {
		return o.j.err
	}
	select {
	case <-o.j.done:
		return o.j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns nil for a completed job, an error wrapping ErrCanceled or
// ErrFaulted for the other terminal states, and ErrNotFinished otherwise.
func (o *Operation) Err() error {
	if !o.j.isDone() {
		return errNotFinished
	}
	return o.j.err
}

// Value returns the produced value once the job is terminal. A faulted job
// returns its captured failure.
func (o *Operation) Value() (any, error) {
	if !o.j.isDone() {
		return nil, errNotFinished
	}
	return o.j.value, o.j.err
}

// Timing reports when the job was submitted, started and finished. Zero
// values mean the corresponding transition has not been observed.
func (o *Operation) Timing() (submitted, started, finished time.Time) {
	if !o.j.isDone() {
		return o.j.submitted, time.Time{}, time.Time{}
	}
	return o.j.submitted, o.j.startedAt, o.j.finishedAt
}

// Result is a typed Operation.
type Result[T any] struct {
	*Operation
}

// Value returns the typed value once the job is terminal.
func (r *Result[T]) Value() (T, error) {
	var zero T
	v, err := r.Operation.Value()
	if err != nil || v == nil {
		return zero, err
	}
	return v.(T), nil
}

// Submitter accepts work for serialized execution. Engine and DelayEngine
// both implement it.
type Submitter interface {
	Go(ctx context.Context, work Work, opts ...SubmitOption) (*Operation, error)
}

func typed[T any](fn func(ctx context.Context) (T, error)) Work {
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Submit enqueues fn on s and returns a typed handle without blocking.
func Submit[T any](s Submitter, ctx context.Context, fn func(ctx context.Context) (T, error), opts ...SubmitOption) (*Result[T], error) {
	op, err := s.Go(ctx, typed(fn), opts...)
	if err != nil {
		return nil, err
	}
	return &Result[T]{Operation: op}, nil
}

// Call submits fn on s and blocks until it finishes or ctx is done.
func Call[T any](s Submitter, ctx context.Context, fn func(ctx context.Context) (T, error), opts ...SubmitOption) (T, error) {
	var zero T
	res, err := Submit(s, ctx, fn, opts...)
	if err != nil {
		return zero, err
	}
	if err := res.Wait(ctx); err != nil {
		return zero, err
	}
	return res.Value()
}

// SubmitAfter schedules fn on d after delay and returns a typed handle.
func SubmitAfter[T any](d *DelayEngine, ctx context.Context, delay time.Duration, fn func(ctx context.Context) (T, error), opts ...SubmitOption) (*Result[T], error) {
	op, err := d.GoAfter(ctx, delay, typed(fn), opts...)
	if err != nil {
		return nil, err
	}
	return &Result[T]{Operation: op}, nil
}
