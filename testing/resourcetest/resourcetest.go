/*
Package resourcetest scopes ephemeral resources to a test.

Resources acquired here are stopped by t.Cleanup, so a test cannot leak a
server even when it fails part way. Main reaps anything that was abandoned
anyway before the test binary exits:

	func TestMain(m *testing.M) {
		resourcetest.Main(m)
	}
*/
package resourcetest

import (
	"context"
	"os"

	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/termination"
	"github.com/circleci/ephemeral/testing/internal/types"
	"github.com/circleci/ephemeral/testing/testcontext"
)

// New starts a resource for the duration of the test, failing the test when it
// cannot be started. Teardown problems are logged on t.
func New(t types.TestingTB, kind resource.Kind, s resource.Settings) *resource.Controller {
	t.Helper()
	ctx := testcontext.Background()

	if s.Warn == nil {
		s.Warn = func(err error) {
			t.Logf("%s: %v", kind.Name, err)
		}
	}
	c, err := resource.New(ctx, kind, s)
	if err != nil {
		t.Fatalf("failed to start %s: %v", kind.Name, err)
		return nil
	}
	t.Cleanup(func() {
		c.Stop(ctx)
	})
	return c
}

// NewFactory returns a factory whose template is removed when the test ends.
func NewFactory(t types.TestingTB, kind resource.Kind, s resource.Settings, opts resource.FactoryOptions) *resource.Factory {
	t.Helper()
	ctx := testcontext.Background()

	f, err := resource.NewFactory(ctx, kind, s, opts)
	if err != nil {
		t.Fatalf("failed to prepare %s: %v", kind.Name, err)
		return nil
	}
	t.Cleanup(func() {
		f.Close(ctx)
	})
	return f
}

// NewFromFactory starts a resource from f for the duration of the test.
func NewFromFactory(t types.TestingTB, f *resource.Factory) *resource.Controller {
	t.Helper()
	ctx := testcontext.Background()

	c, err := f.New(ctx)
	if err != nil {
		t.Fatalf("failed to start resource: %v", err)
		return nil
	}
	t.Cleanup(func() {
		c.Stop(ctx)
	})
	return c
}

// M is satisfied by *testing.M.
type M interface {
	Run() int
}

// Main runs the tests, stops any resource that was never stopped, and exits.
func Main(m M) {
	code := m.Run()
	ctx, cancel := context.WithTimeout(testcontext.Background(), termination.ReapTimeout)
	termination.Reap(ctx)
	cancel()
	os.Exit(code)
}
