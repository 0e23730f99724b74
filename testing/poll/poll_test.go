package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestForIt(t *testing.T) {
	ctx := context.Background()

	t.Run("stops when told", func(t *testing.T) {
		calls := 0
		err := ForIt(ctx, time.Second, time.Millisecond, func(context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		assert.Check(t, err)
		assert.Check(t, cmp.Equal(calls, 3))
	})

	t.Run("returns the stopping error", func(t *testing.T) {
		sentinel := errors.New("hard failure")
		err := ForIt(ctx, time.Second, time.Millisecond, func(context.Context) (bool, error) {
			return true, sentinel
		})
		assert.Check(t, cmp.ErrorIs(err, sentinel))
	})

	t.Run("times out with the last error", func(t *testing.T) {
		start := time.Now()
		err := ForIt(ctx, 200*time.Millisecond, 20*time.Millisecond, func(context.Context) (bool, error) {
			return false, errors.New("not yet")
		})
		elapsed := time.Since(start)

		var te *TimeoutError
		assert.Assert(t, errors.As(err, &te))
		assert.Check(t, cmp.ErrorContains(err, "not yet"))
		assert.Check(t, cmp.ErrorIs(err, context.DeadlineExceeded))
		assert.Check(t, elapsed >= 200*time.Millisecond, elapsed)
		assert.Check(t, elapsed < time.Second, elapsed)
	})

	t.Run("caller cancellation wins", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := ForIt(cctx, time.Second, time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.Check(t, cmp.ErrorIs(err, context.Canceled))
	})
}

func TestAssertIt(t *testing.T) {
	n := 0
	AssertIt(context.Background(), t, time.Second, func(context.Context) (bool, error) {
		n++
		return n > 1, nil
	})
}
