package jobs

import "time"

// Clock supplies monotonic time and one-shot timers to the delay layer.
//
// Now returns the elapsed time since an arbitrary fixed epoch. Values are
// 64-bit durations read from the runtime's monotonic clock, so they never wrap
// and are unaffected by wall clock adjustments.
type Clock interface {
	Now() time.Duration
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a one-shot timer created by a Clock.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer has
	// already fired or been stopped.
	Stop() bool
}

type monotonicClock struct {
	epoch time.Time
}

// NewMonotonicClock returns a Clock backed by time.Now's monotonic reading.
func NewMonotonicClock() Clock {
	return &monotonicClock{epoch: time.Now()}
}

func (c *monotonicClock) Now() time.Duration {
	return time.Since(c.epoch)
}

func (c *monotonicClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
