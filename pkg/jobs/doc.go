// Package jobs serializes work onto a single background goroutine.
//
// An Engine accepts jobs from any goroutine and runs them one at a time in
// submission order. The worker goroutine exists only while there is work: it
// is started by the submission that finds the engine idle and exits as soon
// as it sees the queue empty.
//
//	e := jobs.New("index")
//	defer e.Close()
//
//	op, err := e.Go(ctx, func(ctx context.Context) (any, error) {
//		return rebuild(ctx)
//	})
//	if err != nil {
//		return err // jobs.ErrDisposed
//	}
//	if err := op.Wait(ctx); err != nil {
//		return err // wraps jobs.ErrCanceled or jobs.ErrFaulted
//	}
//
// A DelayEngine adds delayed submission on top of an Engine. Delayed jobs wait
// in a pending list and are moved into the run queue once their deadline has
// passed; a single timer, always armed for the nearest deadline, serves the
// whole list.
//
// Cancellation is cooperative and per job: the context passed at submission
// is checked before the work runs and handed to the work itself. Closing an
// engine cancels every job that has not started yet.
package jobs
