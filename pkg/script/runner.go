package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/slimjob/pkg/jobs"
)

// Outcome is the result of one step.
type Outcome struct {
	Name    string        `json:"name"`
	State   string        `json:"state"`
	Delay   time.Duration `json:"delay"`
	Started int           `json:"started"` // 1-based start position, 0 if the work never ran
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
}

// Report summarises a script run.
type Report struct {
	Script    string        `json:"script"`
	Outcomes  []Outcome     `json:"outcomes"` // in step order
	Order     []string      `json:"order"`    // step names in the order their work started
	Completed int           `json:"completed"`
	Faulted   int           `json:"faulted"`
	Canceled  int           `json:"canceled"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether any step faulted.
func (r *Report) Failed() bool {
	return r.Faulted > 0
}

// Runner executes scripts on a DelayEngine. Steps share the engine, so their
// work runs strictly one at a time.
type Runner struct {
	engine       *jobs.DelayEngine
	defaultDelay time.Duration
	logger       zerolog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDefaultDelay applies d to steps that do not set a delay.
func WithDefaultDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.defaultDelay = d
	}
}

// WithLogger sets the runner's logger.
func WithLogger(logger zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner submitting to engine.
func NewRunner(engine *jobs.DelayEngine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine: engine,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "script").Logger()
	return r
}

type submitted struct {
	step    Step
	delay   time.Duration
	op      *jobs.Operation
	started *atomic.Int64
	cancel  context.CancelFunc
}

// Run submits every step, waits for all of them and returns the report. If
// ctx is done first, Run returns ctx.Err() together with nil report; jobs
// already queued keep running on the engine.
func (r *Runner) Run(ctx context.Context, s *Script) (*Report, error) {
	begin := time.Now()
	var seq atomic.Int64

	subs := make([]submitted, 0, len(s.Steps))
	defer func() {
		for _, sub := range subs {
			sub.cancel()
		}
	}()

	for _, step := range s.Steps {
		delay := step.Delay
		if !step.delaySet && delay == 0 {
			delay = r.defaultDelay
		}

		var (
			jobCtx context.Context
			cancel context.CancelFunc
		)
		if step.CancelAfter > 0 {
			jobCtx, cancel = withCancelAfter(ctx, step.CancelAfter)
		} else {
			jobCtx, cancel = context.WithCancel(ctx)
		}

		started := new(atomic.Int64)
		op, err := r.engine.GoAfter(jobCtx, delay, r.work(step, &seq, started), jobs.Named(step.Name))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("submit step %q: %w", step.Name, err)
		}

		r.logger.Debug().
			Str("step", step.Name).
			Dur("delay", delay).
			Str("job_id", op.ID()).
			Msg("Step submitted")

		subs = append(subs, submitted{step: step, delay: delay, op: op, started: started, cancel: cancel})
	}

	for _, sub := range subs {
		select {
		case <-sub.op.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	report := &Report{
		Script:   s.Name,
		Outcomes: make([]Outcome, 0, len(subs)),
		Duration: time.Since(begin),
	}
	for _, sub := range subs {
		report.Outcomes = append(report.Outcomes, outcomeOf(sub))
		switch sub.op.State() {
		case jobs.StateCompleted:
			report.Completed++
		case jobs.StateFaulted:
			report.Faulted++
		case jobs.StateCanceled:
			report.Canceled++
		}
	}
	report.Order = executionOrder(report.Outcomes)

	r.logger.Info().
		Str("script", s.Name).
		Int("completed", report.Completed).
		Int("faulted", report.Faulted).
		Int("canceled", report.Canceled).
		Dur("duration", report.Duration).
		Msg("Script finished")

	return report, nil
}

func (r *Runner) work(step Step, seq, started *atomic.Int64) jobs.Work {
	return func(ctx context.Context) (any, error) {
		started.Store(seq.Add(1))

		if step.Sleep > 0 {
			timer := time.NewTimer(step.Sleep)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if step.Panic {
			panic(fmt.Sprintf("step %s panicked", step.Name))
		}
		if step.Fail != "" {
			return nil, errors.New(step.Fail)
		}
		return step.Name, nil
	}
}

// withCancelAfter returns a context canceled d after the call. Unlike a
// deadline it reports context.Canceled, so a step canceled while sleeping is
// treated as cooperative cancellation rather than a timeout.
func withCancelAfter(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	timer := time.AfterFunc(d, cancel)
	return ctx, func() {
		timer.Stop()
		cancel()
	}
}

func outcomeOf(sub submitted) Outcome {
	_, startedAt, finishedAt := sub.op.Timing()
	out := Outcome{
		Name:    sub.step.Name,
		State:   sub.op.State().String(),
		Delay:   sub.delay,
		Started: int(sub.started.Load()),
	}
	if out.Started > 0 && !startedAt.IsZero() {
		out.Elapsed = finishedAt.Sub(startedAt)
	}
	if err := sub.op.Err(); err != nil {
		out.Error = err.Error()
	}
	return out
}

func executionOrder(outcomes []Outcome) []string {
	ran := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Started > 0 {
			ran = append(ran, o)
		}
	}
	sort.Slice(ran, func(i, j int) bool { return ran[i].Started < ran[j].Started })

	order := make([]string, len(ran))
	for i, o := range ran {
		order[i] = o.Name
	}
	return order
}
