//go:build unix

package resourcetest

import (
	"context"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/ephemeral/process"
	"github.com/circleci/ephemeral/resource"
)

var sleeper = resource.Kind{
	Name: "sleeper",
	Command: func(resource.Settings, string, int) (process.Command, error) {
		return process.Command{Path: "sleep", Args: []string{"60"}}, nil
	},
	ProbeReady: func(context.Context, resource.Settings, resource.Descriptor) error {
		return nil
	},
}

func TestNew_StoppedByCleanup(t *testing.T) {
	ft := &fakeT{}
	c := New(ft, sleeper, resource.Settings{})
	assert.Assert(t, c != nil)
	assert.Check(t, c.IsAlive())
	assert.Check(t, cmp.Len(ft.cleanups, 1))

	ft.runCleanups()
	assert.Check(t, !c.IsAlive())
	assert.Check(t, cmp.Equal(c.State(), resource.Stopped))
}

func TestNew_FailureFailsTheTest(t *testing.T) {
	broken := sleeper
	broken.Command = func(resource.Settings, string, int) (process.Command, error) {
		return process.Command{Path: "/definitely/not/here"}, nil
	}

	ft := &fakeT{}
	c := New(ft, broken, resource.Settings{})
	assert.Check(t, c == nil)
	assert.Check(t, cmp.Contains(ft.fatal, "failed to start sleeper"))
	assert.Check(t, cmp.Len(ft.cleanups, 0))
}

func TestFactory(t *testing.T) {
	ft := &fakeT{}
	f := NewFactory(ft, sleeper, resource.Settings{}, resource.FactoryOptions{CacheInitialized: true})
	assert.Assert(t, f != nil)

	c := NewFromFactory(ft, f)
	assert.Assert(t, c != nil)
	assert.Check(t, c.IsAlive())

	ft.runCleanups()
	assert.Check(t, !c.IsAlive())
	assert.Check(t, cmp.ErrorIs(f.Snapshot(t.TempDir()+"/x"+resource.ArchiveExt), resource.ErrNoTemplate))
}

type fakeT struct {
	fatal    string
	logs     []string
	cleanups []func()
}

func (f *fakeT) Cleanup(fn func())     { f.cleanups = append(f.cleanups, fn) }
func (f *fakeT) Errorf(string, ...any) {}
func (f *fakeT) FailNow()              {}
func (f *fakeT) Helper()               {}
func (f *fakeT) Name() string          { return "fake" }
func (f *fakeT) Skipf(string, ...any)  {}
func (f *fakeT) Fatalf(format string, a ...any) {
	f.fatal = fmt.Sprintf(format, a...)
}
func (f *fakeT) Logf(format string, a ...any) {
	f.logs = append(f.logs, fmt.Sprintf(format, a...))
}

func (f *fakeT) runCleanups() {
	for i := len(f.cleanups) - 1; i >= 0; i-- {
		f.cleanups[i]()
	}
	f.cleanups = nil
}
