package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDelayEngine(t *testing.T, name string, clock Clock) *DelayEngine {
	t.Helper()
	opts := []Option{WithLogger(zerolog.Nop())}
	if clock != nil {
		opts = append(opts, WithClock(clock))
	}
	d := NewDelayEngine(name, opts...)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// recorder collects job names in execution order.
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) job(name string) func() {
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.names = append(r.names, name)
	}
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestDelayEngine_ShorterDelayRunsFirst(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "scenario-2", clock)
	rec := &recorder{}

	opD, err := d.GoFuncAfter(context.Background(), 50*time.Millisecond, rec.job("D"), Named("D"))
	require.NoError(t, err)
	opE, err := d.GoFuncAfter(context.Background(), 10*time.Millisecond, rec.job("E"), Named("E"))
	require.NoError(t, err)

	require.Equal(t, 2, d.Pending())
	require.Equal(t, 1, clock.Armed())

	clock.Advance(10 * time.Millisecond)
	waitAll(t, opE)
	assert.Equal(t, 1, d.Pending())
	assert.Equal(t, StatePending, opD.State())

	clock.Advance(40 * time.Millisecond)
	waitAll(t, opD)

	assert.Equal(t, []string{"E", "D"}, rec.order())
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, 0, d.ArmedTimers())
	assert.Equal(t, 0, clock.Armed())
}

func TestDelayEngine_ShorterDelayRunsFirstRealClock(t *testing.T) {
	d := newTestDelayEngine(t, "scenario-2-real", nil)
	rec := &recorder{}

	opD, err := d.GoFuncAfter(context.Background(), 50*time.Millisecond, rec.job("D"))
	require.NoError(t, err)
	opE, err := d.GoFuncAfter(context.Background(), 10*time.Millisecond, rec.job("E"))
	require.NoError(t, err)

	waitAll(t, opD, opE)
	assert.Equal(t, []string{"E", "D"}, rec.order())
	assert.Equal(t, 0, d.ArmedTimers())
}

func TestDelayEngine_ZeroDelaySkipsTimer(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "scenario-3", clock)

	var ran atomic.Bool
	op, err := d.GoFuncAfter(context.Background(), 0, func() { ran.Store(true) }, Named("F"))
	require.NoError(t, err)
	waitAll(t, op)

	neg, err := d.GoFuncAfter(context.Background(), -time.Second, func() {})
	require.NoError(t, err)
	waitAll(t, neg)

	imm, err := d.Go(context.Background(), Action(func() {}))
	require.NoError(t, err)
	waitAll(t, imm)

	assert.True(t, ran.Load())
	assert.Equal(t, StateCompleted, op.State())
	assert.Equal(t, uint64(0), d.TimerArms(), "no timer may be armed for immediate jobs")
	assert.Empty(t, clock.timers)
	assert.Equal(t, 0, d.Pending())
}

func TestDelayEngine_NeverPromotesBeforeDeadline(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "deadline", clock)

	var calls atomic.Int32
	op, err := d.GoFuncAfter(context.Background(), 30*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)

	clock.Advance(29 * time.Millisecond)
	assert.Equal(t, 1, d.Pending())
	assert.True(t, d.Engine().Idle())
	assert.Equal(t, StatePending, op.State())

	clock.Advance(time.Millisecond)
	waitAll(t, op)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDelayEngine_CoalescesTimers(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "coalesce", clock)
	rec := &recorder{}

	delays := []int{70, 20, 90, 10, 50, 30, 80, 60, 40, 100}
	ops := make([]*Operation, 0, len(delays))
	for _, ms := range delays {
		name := (time.Duration(ms) * time.Millisecond).String()
		op, err := d.GoFuncAfter(context.Background(), time.Duration(ms)*time.Millisecond, rec.job(name))
		require.NoError(t, err)
		ops = append(ops, op)

		require.LessOrEqual(t, clock.Armed(), 1)
		require.LessOrEqual(t, d.ArmedTimers(), 1)
	}
	require.Equal(t, len(delays), d.Pending())

	for step := 0; step < 10; step++ {
		clock.Advance(10 * time.Millisecond)
		require.LessOrEqual(t, clock.Armed(), 1)
		require.Equal(t, len(delays)-step-1, d.Pending())
	}
	waitAll(t, ops...)

	assert.Equal(t, []string{
		"10ms", "20ms", "30ms", "40ms", "50ms",
		"60ms", "70ms", "80ms", "90ms", "100ms",
	}, rec.order())
	assert.Equal(t, 0, clock.Armed())
}

func TestDelayEngine_SameDeadlineDoesNotRearm(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "same", clock)

	a, err := d.GoFuncAfter(context.Background(), 25*time.Millisecond, func() {})
	require.NoError(t, err)
	b, err := d.GoFuncAfter(context.Background(), 25*time.Millisecond, func() {})
	require.NoError(t, err)
	c, err := d.GoFuncAfter(context.Background(), 40*time.Millisecond, func() {})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), d.TimerArms())

	clock.Advance(25 * time.Millisecond)
	waitAll(t, a, b)
	assert.Equal(t, uint64(2), d.TimerArms(), "re-armed once for the remaining job")

	clock.Advance(15 * time.Millisecond)
	waitAll(t, c)
}

func TestDelayEngine_LateTimerPromotesEverythingDue(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "late", clock)
	rec := &recorder{}

	var ops []*Operation
	for _, name := range []string{"30", "10", "20", "500"} {
		var delay time.Duration
		switch name {
		case "10":
			delay = 10 * time.Millisecond
		case "20":
			delay = 20 * time.Millisecond
		case "30":
			delay = 30 * time.Millisecond
		default:
			delay = 500 * time.Millisecond
		}
		op, err := d.GoFuncAfter(context.Background(), delay, rec.job(name))
		require.NoError(t, err)
		ops = append(ops, op)
	}

	// One late firing covers three deadlines at once.
	clock.Advance(100 * time.Millisecond)
	waitAll(t, ops[:3]...)
	assert.Equal(t, []string{"10", "20", "30"}, rec.order(), "ready jobs join in deadline order")
	assert.Equal(t, 1, d.Pending())
	assert.Equal(t, 1, clock.Armed())

	clock.Advance(400 * time.Millisecond)
	waitAll(t, ops[3])
	assert.Equal(t, 0, clock.Armed())
}

func TestDelayEngine_EarlyFireIsAbsorbed(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "early", clock)

	var calls atomic.Int32
	op, err := d.GoFuncAfter(context.Background(), 10*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)

	// Timer fires before the deadline: nothing moves, the timer is re-armed.
	clock.FireAll()
	assert.Equal(t, 1, d.Pending())
	assert.Equal(t, 1, d.ArmedTimers())
	assert.Equal(t, 1, clock.Armed())
	assert.Equal(t, uint64(2), d.TimerArms())

	clock.Advance(10 * time.Millisecond)
	waitAll(t, op)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDelayEngine_StaleTimerCallbackIgnored(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "stale", clock)

	_, err := d.GoFuncAfter(context.Background(), 50*time.Millisecond, func() {})
	require.NoError(t, err)

	d.mu.Lock()
	staleGen := d.gen
	d.mu.Unlock()

	_, err = d.GoFuncAfter(context.Background(), 10*time.Millisecond, func() {})
	require.NoError(t, err)

	d.fire(staleGen)
	assert.Equal(t, 2, d.Pending())
	assert.Equal(t, 1, d.ArmedTimers())
}

func TestDelayEngine_CanceledWhilePending(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "cancel", clock)

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	op, err := d.GoFuncAfter(ctx, 10*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)

	cancel()
	clock.Advance(10 * time.Millisecond)
	waitAll(t, op)

	assert.Equal(t, StateCanceled, op.State())
	assert.Equal(t, int32(0), calls.Load())
}

func TestDelayEngine_CloseAbortsPending(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "dispose", clock)

	var calls atomic.Int32
	var ops []*Operation
	for i := 1; i <= 4; i++ {
		op, err := d.GoFuncAfter(context.Background(), time.Duration(i)*time.Second, func() { calls.Add(1) })
		require.NoError(t, err)
		ops = append(ops, op)
	}

	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "Close is idempotent")
	waitAll(t, ops...)

	for _, op := range ops {
		assert.Equal(t, StateCanceled, op.State())
		assert.ErrorIs(t, op.Err(), ErrDisposed)
	}
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, 0, d.ArmedTimers())
	assert.Equal(t, 0, clock.Armed())

	// Time moving on after disposal never reaches the wrapped engine.
	clock.Advance(10 * time.Second)
	assert.True(t, d.Engine().Idle())
	assert.Equal(t, int32(0), calls.Load())
}

func TestDelayEngine_SubmitAfterClose(t *testing.T) {
	d := newTestDelayEngine(t, "closed", newFakeClock())
	require.NoError(t, d.Close())

	_, err := d.GoFuncAfter(context.Background(), time.Second, func() {})
	assert.ErrorIs(t, err, ErrDisposed)

	_, err = d.GoFuncAfter(context.Background(), 0, func() {})
	assert.ErrorIs(t, err, ErrDisposed)

	_, err = SubmitAfter(d, context.Background(), time.Second, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrDisposed)

	_, err = d.Engine().GoFunc(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrDisposed, "wrapped engine is closed too")
}

func TestDelayEngine_TypedSubmitAfter(t *testing.T) {
	clock := newFakeClock()
	d := newTestDelayEngine(t, "typed", clock)

	res, err := SubmitAfter(d, context.Background(), 5*time.Millisecond, func(context.Context) (int, error) {
		return 9, nil
	})
	require.NoError(t, err)

	clock.Advance(5 * time.Millisecond)
	require.NoError(t, res.Wait(context.Background()))
	v, err := res.Value()
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	got, err := Call(d, context.Background(), func(context.Context) (string, error) {
		return "now", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "now", got)
}
