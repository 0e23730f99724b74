// Package poll repeatedly calls a function until it says stop, or a deadline passes.
// It is the retry cadence behind resource readiness probing.
package poll

import (
	"context"
	"fmt"
	"time"

	"gotest.tools/v3/assert"
)

// DefaultInterval is the pause between calls when no interval is given.
const DefaultInterval = 50 * time.Millisecond

type it func(ctx context.Context) (stop bool, err error)

// TimeoutError is returned when the duration elapses before it says stop. Last
// holds the error from the final call, the best hint as to why it never stopped.
type TimeoutError struct {
	Duration time.Duration
	Last     error
}

func (e *TimeoutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("timeout hit after %s", e.Duration)
	}
	return fmt.Sprintf("timeout hit after %s: %v", e.Duration, e.Last)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// TestingT is the subset of testing.TB used by AssertIt.
type TestingT interface {
	assert.TestingT
	Helper()
}

// AssertIt will periodically call it up to duration. It is a function that returns
// a bool to stop the polling, and a resultant error. This function will assert that
// no error was returned.
func AssertIt(ctx context.Context, t TestingT, duration time.Duration, it it) {
	t.Helper()
	err := ForIt(ctx, duration, DefaultInterval, it)
	assert.NilError(t, err)
}

// ForIt will call it every interval up to duration. It is a function that returns
// a bool to stop the polling, and a resultant error. The context passed to it
// carries the overall deadline. Cancellation of ctx by the caller ends polling with
// the context error; running out of time ends it with a *TimeoutError.
func ForIt(ctx context.Context, duration, interval time.Duration, it it) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	pctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var last error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if pctx.Err() != nil {
			return &TimeoutError{Duration: duration, Last: last}
		}
		stop, err := it(pctx)
		if stop {
			return err
		}
		last = err

		select {
		case <-pctx.Done():
		case <-time.After(interval):
		}
	}
}
