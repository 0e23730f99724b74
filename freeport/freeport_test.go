package freeport

import (
	"fmt"
	"net"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestGet(t *testing.T) {
	port, err := Get()
	assert.Assert(t, err)
	assert.Check(t, port > 0 && port < 65536, port)

	t.Run("the port can be bound", func(t *testing.T) {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		assert.Assert(t, err)
		assert.Check(t, l.Close())
	})
}

func TestGetN(t *testing.T) {
	ports, err := GetN(5)
	assert.Assert(t, err)
	assert.Check(t, cmp.Len(ports, 5))

	seen := map[int]bool{}
	for _, p := range ports {
		assert.Check(t, !seen[p], "port %d handed out twice", p)
		seen[p] = true
	}
}

func TestGetN_NotPositive(t *testing.T) {
	for _, n := range []int{0, -1} {
		ports, err := GetN(n)
		assert.Check(t, cmp.ErrorContains(err, "cannot allocate"))
		assert.Check(t, cmp.Len(ports, 0))
	}
}
