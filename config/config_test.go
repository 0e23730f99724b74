package config

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestLoad(t *testing.T) {
	t.Setenv("EPHEMERAL_PRESERVE_DIR", "true")
	t.Setenv("EPHEMERAL_TIMEOUT_SCALE", "-3")
	t.Setenv("EPHEMERAL_TMPDIR", "/scratch")
	t.Setenv("EPHEMERAL_PROBE_INTERVAL", "250ms")

	e, vars, err := load()
	assert.NilError(t, err)
	assert.Check(t, e.PreserveDirs)
	assert.Check(t, !e.RequireServers)
	assert.Check(t, cmp.Equal(e.TimeoutScale, 1.0), "non positive scale is ignored")
	assert.Check(t, cmp.Equal(e.TempRoot, "/scratch"))
	assert.Check(t, cmp.Equal(e.ProbeInterval, 250*time.Millisecond))
	assert.Check(t, cmp.Len(vars, 6))
}

func TestLoad_BadValues(t *testing.T) {
	t.Setenv("EPHEMERAL_REQUIRE_SERVERS", "sometimes")
	t.Setenv("EPHEMERAL_PROBE_INTERVAL", "often")

	e, _, err := load()
	assert.Check(t, cmp.ErrorContains(err, "EPHEMERAL_REQUIRE_SERVERS"))
	assert.Check(t, cmp.ErrorContains(err, "EPHEMERAL_PROBE_INTERVAL"))
	assert.Check(t, !e.RequireServers)
	assert.Check(t, cmp.Equal(e.ProbeInterval, 100*time.Millisecond))
}

func TestScale(t *testing.T) {
	assert.Check(t, cmp.Equal(Environment{}.Scale(time.Second), time.Second))
	assert.Check(t, cmp.Equal(Environment{TimeoutScale: 1}.Scale(time.Second), time.Second))
	assert.Check(t, cmp.Equal(Environment{TimeoutScale: 2.5}.Scale(2*time.Second), 5*time.Second))
}
