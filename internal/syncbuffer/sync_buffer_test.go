package syncbuffer

import (
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestSyncBuffer_ConcurrentWrites(t *testing.T) {
	b := &SyncBuffer{}
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := fmt.Fprintln(b, "0123456789")
			return err
		})
	}
	assert.NilError(t, g.Wait())
	assert.Check(t, cmp.Equal(b.Len(), 110))
}

func TestSyncBuffer_Tail(t *testing.T) {
	b := &SyncBuffer{}
	_, _ = b.Write([]byte("first line\nsecond line\nthird\n"))

	t.Run("everything fits", func(t *testing.T) {
		assert.Check(t, cmp.Equal(b.Tail(1000), "first line\nsecond line\nthird\n"))
	})

	t.Run("cut at a line boundary", func(t *testing.T) {
		assert.Check(t, cmp.Equal(b.Tail(15), "third\n"))
	})

	t.Run("no line boundary", func(t *testing.T) {
		assert.Check(t, cmp.Equal(b.Tail(4), "ird\n"))
	})
}
