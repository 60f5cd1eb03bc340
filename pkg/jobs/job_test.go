package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StatePending, "pending"},
		{StateRunning, "running"},
		{StateCompleted, "completed"},
		{StateFaulted, "faulted"},
		{StateCanceled, "canceled"},
		{State(42), "state(42)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestState_IsTerminal(t *testing.T) {
	assert.False(t, StatePending.IsTerminal())
	assert.False(t, StateRunning.IsTerminal(), "running is transient")
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFaulted.IsTerminal())
	assert.True(t, StateCanceled.IsTerminal())
}

func TestNewJob_DefaultsName(t *testing.T) {
	j := newJob(context.Background(), Action(func() {}))

	require.NotEmpty(t, j.id)
	assert.Equal(t, j.id[:8], j.name)
	assert.Equal(t, StatePending, j.State())

	named := newJob(nil, Action(func() {}), Named("reindex"))
	assert.Equal(t, "reindex", named.name)
	assert.NotNil(t, named.ctx)
}

func TestJob_RunCompletes(t *testing.T) {
	j := newJob(context.Background(), func(context.Context) (any, error) {
		return 7, nil
	})

	require.True(t, j.run())

	op := newOperation(j)
	assert.Equal(t, StateCompleted, op.State())
	v, err := op.Value()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.NoError(t, op.Err())

	submitted, started, finished := op.Timing()
	assert.False(t, submitted.IsZero())
	assert.False(t, started.Before(submitted))
	assert.False(t, finished.Before(started))
}

func TestJob_RunSkipsWorkWhenAlreadyCanceled(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j := newJob(ctx, Action(func() { calls.Add(1) }))
	require.True(t, j.run())

	assert.Equal(t, StateCanceled, j.State())
	assert.Equal(t, int32(0), calls.Load())
	assert.ErrorIs(t, j.err, ErrCanceled)
	assert.ErrorIs(t, j.err, context.Canceled)
}

func TestJob_CooperativeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	j := newJob(ctx, func(ctx context.Context) (any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.True(t, j.run())

	assert.Equal(t, StateCanceled, j.State())
	assert.ErrorIs(t, j.err, ErrCanceled)
}

func TestJob_ExplicitCanceledError(t *testing.T) {
	j := newJob(context.Background(), func(context.Context) (any, error) {
		return nil, ErrCanceled
	})
	require.True(t, j.run())

	assert.Equal(t, StateCanceled, j.State())
}

func TestJob_ContextErrorWithoutCancellationFaults(t *testing.T) {
	// The job's own context is live, so context.Canceled from elsewhere is a
	// failure of the work, not a cancellation of the job.
	j := newJob(context.Background(), func(context.Context) (any, error) {
		return nil, context.Canceled
	})
	require.True(t, j.run())

	assert.Equal(t, StateFaulted, j.State())
	assert.ErrorIs(t, j.err, ErrFaulted)
}

func TestJob_RunCapturesError(t *testing.T) {
	boom := errors.New("boom")
	j := newJob(context.Background(), func(context.Context) (any, error) {
		return "ignored", boom
	})
	require.True(t, j.run())

	op := newOperation(j)
	assert.Equal(t, StateFaulted, op.State())
	v, err := op.Value()
	assert.Nil(t, v)
	assert.ErrorIs(t, err, ErrFaulted)
	assert.ErrorIs(t, err, boom)
}

func TestJob_RunRecoversPanic(t *testing.T) {
	j := newJob(context.Background(), Action(func() { panic("kaboom") }))
	require.True(t, j.run())

	assert.Equal(t, StateFaulted, j.State())
	var pe *PanicError
	require.ErrorAs(t, j.err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Contains(t, pe.Error(), "kaboom")
}

func TestJob_RunAndAbortAreExclusive(t *testing.T) {
	t.Run("abort wins", func(t *testing.T) {
		var calls atomic.Int32
		j := newJob(context.Background(), Action(func() { calls.Add(1) }))

		require.True(t, j.abort(nil))
		assert.False(t, j.run())
		assert.False(t, j.abort(nil))

		assert.Equal(t, int32(0), calls.Load())
		assert.Equal(t, StateCanceled, j.State())
		assert.ErrorIs(t, j.err, ErrCanceled)
	})

	t.Run("run wins", func(t *testing.T) {
		j := newJob(context.Background(), Action(func() {}))

		require.True(t, j.run())
		assert.False(t, j.abort(nil))
		assert.False(t, j.run())
		assert.Equal(t, StateCompleted, j.State())
	})
}

func TestOperation_ValueBeforeFinish(t *testing.T) {
	op := newOperation(newJob(context.Background(), Action(func() {})))

	_, err := op.Value()
	assert.ErrorIs(t, err, ErrNotFinished)
	assert.ErrorIs(t, op.Err(), ErrNotFinished)

	_, started, finished := op.Timing()
	assert.True(t, started.IsZero())
	assert.True(t, finished.IsZero())
}

func TestOperation_WaitCanceledLeavesJobAlone(t *testing.T) {
	j := newJob(context.Background(), Action(func() {}))
	op := newOperation(j)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := op.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatePending, op.State())

	require.True(t, j.run())
	require.NoError(t, op.Wait(context.Background()))
}

func TestOperation_WaitPrefersFinishedJobOverDoneContext(t *testing.T) {
	j := newJob(context.Background(), func(context.Context) (any, error) { return 42, nil })
	require.True(t, j.run())
	op := newOperation(j)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 200; i++ {
		require.NoError(t, op.Wait(ctx), "iteration %d", i)
	}
}

func TestOperation_WaitReturnsJobError(t *testing.T) {
	j := newJob(context.Background(), func(context.Context) (any, error) {
		return nil, errors.New("bad input")
	})
	require.True(t, j.run())

	err := newOperation(j).Wait(nil)
	assert.ErrorIs(t, err, ErrFaulted)
	assert.Contains(t, err.Error(), "bad input")
}

func TestResult_TypedValue(t *testing.T) {
	j := newJob(context.Background(), typed(func(context.Context) (string, error) {
		return "done", nil
	}))
	res := &Result[string]{Operation: newOperation(j)}

	_, err := res.Value()
	assert.ErrorIs(t, err, ErrNotFinished)

	require.True(t, j.run())
	v, err := res.Value()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestAdapters(t *testing.T) {
	var called bool
	v, err := Action(func() { called = true })(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, called)

	boom := errors.New("boom")
	_, err = ActionErr(func(context.Context) error { return boom })(context.Background())
	assert.ErrorIs(t, err, boom)
}
