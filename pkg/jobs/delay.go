// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package jobs

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type delayed struct {
	job      *job
	deadline time.Duration
}

// DelayEngine wraps an Engine and lets jobs join its queue only once a delay
// has elapsed. All pending jobs share a single timer armed for the nearest
// deadline.
type DelayEngine struct {
	engine  *Engine
	name    string
	clock   Clock
	logger  zerolog.Logger
	metrics *Metrics

	// mu guards pending, the timer fields and state.
	mu       sync.Mutex
	pending  []delayed
	timer    Timer
	armedFor time.Duration
	gen      uint64
	arms     uint64
	state    lifecycle
}

// NewDelayEngine creates a DelayEngine together with the Engine it feeds.
func NewDelayEngine(name string, opts ...Option) *DelayEngine {
	o := buildOptions(opts)
	return &DelayEngine{
		engine:  New(name, opts...),
		name:    name,
		clock:   o.clock,
		logger:  o.logger.With().Str("component", "jobs.delay").Str("engine", name).Logger(),
		metrics: o.metrics,
	}
}

// Engine returns the wrapped engine.
func (d *DelayEngine) Engine() *Engine { return d.engine }

// Go submits work for immediate execution on the wrapped engine.
func (d *DelayEngine) Go(ctx context.Context, work Work, opts ...SubmitOption) (*Operation, error) {
	return d.GoAfter(ctx, 0, work, opts...)
}

// GoAfter submits work to join the run queue once delay has elapsed. A
// non-positive delay is an immediate submission and never touches the timer.
func (d *DelayEngine) GoAfter(ctx context.Context, delay time.Duration, work Work, opts ...SubmitOption) (*Operation, error) {
	if delay <= 0 {
		if d.closed() {
			return nil, newDisposedError("delay engine", d.name)
		}
		return d.engine.Go(ctx, work, opts...)
	}

	j := newJob(ctx, work, opts...)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == lifecycleClosed {
		return nil, newDisposedError("delay engine", d.name)
	}

	now := d.clock.Now()
	d.pending = append(d.pending, delayed{job: j, deadline: now + delay})
	d.metrics.setPending(d.name, len(d.pending))

	d.logger.Debug().
		Str("job_id", j.id).
		Str("job_name", j.name).
		Dur("delay", delay).
		Int("pending", len(d.pending)).
		Msg("Delayed job scheduled")

	d.rearmLocked(now)
	return newOperation(j), nil
}

// GoFuncAfter schedules a procedure without result.
func (d *DelayEngine) GoFuncAfter(ctx context.Context, delay time.Duration, fn func(), opts ...SubmitOption) (*Operation, error) {
	return d.GoAfter(ctx, delay, Action(fn), opts...)
}

// Pending returns the number of jobs whose deadline has not yet been reached.
func (d *DelayEngine) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// ArmedTimers returns the number of outstanding timers, which is 0 or 1.
func (d *DelayEngine) ArmedTimers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return 0
	}
	return 1
}

// TimerArms returns how many times the timer has been armed since creation.
func (d *DelayEngine) TimerArms() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.arms
}

// Close disarms the timer, aborts every pending job without enqueuing it and
// closes the wrapped engine. Close is idempotent.
func (d *DelayEngine) Close() error {
	d.mu.Lock()
	if d.state == lifecycleClosed {
		d.mu.Unlock()
		return nil
	}
	d.state = lifecycleClosed
	d.disarmLocked()

	cause := newDisposedError("delay engine", d.name)
	aborted := 0
	for _, p := range d.pending {
		if p.job.abort(cause) {
			d.metrics.jobFinished(d.name, StateCanceled, 0)
			aborted++
		}
	}
	d.pending = nil
	d.metrics.setPending(d.name, 0)
	d.mu.Unlock()

	d.logger.Debug().Int("aborted", aborted).Msg("Delay engine closed")
	return d.engine.Close()
}

func (d *DelayEngine) closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == lifecycleClosed
}

// fire is the timer callback. Callbacks from a timer that has since been
// replaced or stopped carry a stale generation and do nothing.
func (d *DelayEngine) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == lifecycleClosed || gen != d.gen {
		return
	}
	d.timer = nil
	d.update()
}

// update moves every pending job whose deadline has elapsed into the wrapped
// engine and re-arms the timer for the nearest remaining deadline. If that
// deadline has already passed by the time it is computed, the pass repeats
// instead of arming a non-positive timer. d.mu must be held.
func (d *DelayEngine) update() {
	for {
		if len(d.pending) == 0 {
			d.disarmLocked()
			return
		}

		now := d.clock.Now()
		var ready, retained []delayed
		for _, p := range d.pending {
			if now >= p.deadline {
				ready = append(ready, p)
			} else {
				retained = append(retained, p)
			}
		}
		d.pending = retained
		d.metrics.setPending(d.name, len(d.pending))

		slices.SortStableFunc(ready, func(a, b delayed) int {
			return cmp.Compare(a.deadline, b.deadline)
		})
		for _, p := range ready {
			d.promote(p)
		}

		if len(retained) == 0 {
			d.disarmLocked()
			return
		}

		next := minDeadline(retained)
		if wait := next - d.clock.Now(); wait > 0 {
			d.armLocked(next, wait)
			return
		}
		d.logger.Debug().Msg("Nearest deadline already elapsed, updating again")
	}
}

func (d *DelayEngine) promote(p delayed) {
	if err := d.engine.push(p.job); err != nil {
		// The wrapped engine was closed underneath us; the job never runs.
		if p.job.abort(err) {
			d.metrics.jobFinished(d.name, StateCanceled, 0)
		}
		return
	}
	d.logger.Debug().
		Str("job_id", p.job.id).
		Str("job_name", p.job.name).
		Msg("Delayed job promoted")
}

// rearmLocked points the timer at the minimum pending deadline after a new
// entry was added at time now.
func (d *DelayEngine) rearmLocked(now time.Duration) {
	next := minDeadline(d.pending)
	if wait := next - now; wait > 0 {
		d.armLocked(next, wait)
		return
	}
	d.update()
}

func (d *DelayEngine) armLocked(deadline, wait time.Duration) {
	if d.timer != nil && d.armedFor == deadline {
		return
	}
	d.disarmLocked()
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(wait, func() { d.fire(gen) })
	d.armedFor = deadline
	d.arms++
	d.metrics.timerArmed(d.name)
}

func (d *DelayEngine) disarmLocked() {
	if d.timer == nil {
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
}

func minDeadline(entries []delayed) time.Duration {
	next := entries[0].deadline
	for _, p := range entries[1:] {
		if p.deadline < next {
			next = p.deadline
		}
	}
	return next
}
