package resource

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/ephemeral/process"
)

func TestSettings_Resolve(t *testing.T) {
	kind := Kind{
		Name:           "db",
		DefaultOptions: map[string]string{"fsync": "off", "encoding": "UTF8"},
	}

	t.Run("defaults", func(t *testing.T) {
		s, err := Settings{}.resolve(kind)
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual(s, Settings{
			Host:          DefaultHost,
			BootTimeout:   DefaultBootTimeout,
			KillTimeout:   DefaultKillTimeout,
			ProbeInterval: DefaultProbeInterval,
			Options:       map[string]string{"fsync": "off", "encoding": "UTF8"},
		}, cmpopts.IgnoreFields(Settings{}, "OnReady", "Warn"), cmpopts.EquateEmpty()))
	})

	t.Run("overrides merge over kind defaults", func(t *testing.T) {
		in := Settings{
			BootTimeout: 3 * time.Second,
			Options:     map[string]string{"fsync": "on"},
			Env:         []string{"A=1"},
		}
		s, err := in.resolve(kind)
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(s.BootTimeout, 3*time.Second))
		assert.Check(t, cmp.Equal(s.Option("fsync"), "on"))
		assert.Check(t, cmp.Equal(s.Option("encoding"), "UTF8"))

		in.Options["fsync"] = "changed"
		in.Env[0] = "A=2"
		assert.Check(t, cmp.Equal(s.Option("fsync"), "on"), "resolved settings do not alias the caller's")
		assert.Check(t, cmp.Equal(s.Env[0], "A=1"))
		assert.Check(t, cmp.Equal(kind.DefaultOptions["fsync"], "off"))
	})

	t.Run("relative base dir", func(t *testing.T) {
		s, err := Settings{BaseDir: "work"}.resolve(kind)
		assert.Assert(t, err)
		assert.Check(t, filepath.IsAbs(s.BaseDir))
		assert.Check(t, cmp.Equal(filepath.Base(s.BaseDir), "work"))
	})

	t.Run("invalid port", func(t *testing.T) {
		_, err := Settings{Port: 70000}.resolve(kind)
		assert.Check(t, cmp.ErrorContains(err, "invalid port 70000"))
	})
}

func TestKind_Defaults(t *testing.T) {
	k := Kind{}
	assert.Check(t, cmp.Equal(k.dataDirectory("/w"), filepath.Join("/w", "data")))
	assert.Check(t, cmp.Equal(k.terminateSignal(), process.TerminateSignal))
	assert.Check(t, k.probe() != nil)

	dir := t.TempDir()
	assert.Check(t, !k.initialized(dir), "empty")
	assert.Check(t, !k.initialized(filepath.Join(dir, "missing")))

	k.Initialized = func(string) bool { return true }
	assert.Check(t, k.initialized(filepath.Join(dir, "missing")))
}

func TestPrepare_InvalidKind(t *testing.T) {
	_, err := Prepare(context.Background(), Kind{Name: "no-command"}, Settings{})
	assert.Check(t, cmp.ErrorContains(err, "needs a name and a command"))
}

func TestPrepare_UnwritableBaseDir(t *testing.T) {
	kind := Kind{
		Name: "db",
		Command: func(Settings, string, int) (process.Command, error) {
			return process.Command{}, nil
		},
	}
	_, err := Prepare(context.Background(), kind, Settings{BaseDir: "/proc/not-writable"})
	var initErr *InitError
	assert.Check(t, errors.As(err, &initErr))
}

func TestState_String(t *testing.T) {
	assert.Check(t, cmp.Equal(Running.String(), "running"))
	assert.Check(t, cmp.Equal(DataReady.String(), "data-ready"))
	assert.Check(t, cmp.Equal(State(99).String(), "unknown"))
	assert.Check(t, Stopped.terminal())
	assert.Check(t, Failed.terminal())
	assert.Check(t, !Running.terminal())
}
