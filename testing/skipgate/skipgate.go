/*
Package skipgate skips tests that need a server which is not installed.

A Gate runs its probe at most once per process, however many tests and
goroutines consult it, and remembers the answer:

	var postgres = skipgate.ForBinary("postgres", binpath.Resolver{
		Roots:   []string{"/usr/lib/postgresql/*", binpath.SearchPath},
		Subdirs: []string{"bin"},
	})

	func TestQuery(t *testing.T) {
		postgres.Skip(t)
		...
	}

With EPHEMERAL_REQUIRE_SERVERS=true, a missing server fails the test instead,
so that CI cannot silently skip everything.
*/
package skipgate

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/circleci/ephemeral/binpath"
	"github.com/circleci/ephemeral/config"
	"github.com/circleci/ephemeral/testing/internal/types"
)

type Gate struct {
	name  string
	probe func() error

	once sync.Once
	err  error

	required func() bool
}

// New returns a gate over probe. A probe that returns an error or panics means
// the server is not installed.
func New(name string, probe func() error) *Gate {
	return &Gate{
		name:  name,
		probe: probe,
		required: func() bool {
			return config.Get().RequireServers
		},
	}
}

// ForBinary gates on r finding the named executable.
func ForBinary(name string, r binpath.Resolver) *Gate {
	return New(name, func() error {
		_, err := r.Find(name)
		return err
	})
}

// Path gates on a specific file existing, without searching.
func Path(name, path string) *Gate {
	return New(name, func() error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		return nil
	})
}

func (g *Gate) run() {
	g.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				g.err = fmt.Errorf("probe panic: %v", r)
			}
		}()
		if g.probe == nil {
			g.err = errors.New("no probe")
			return
		}
		g.err = g.probe()
	})
}

// Installed runs the probe on first use and reports whether it succeeded.
func (g *Gate) Installed() bool {
	g.run()
	return g.err == nil
}

// Err is why the server is not installed, nil when it is.
func (g *Gate) Err() error {
	g.run()
	return g.err
}

// Skip skips t when the server is not installed, or fails it when servers are required.
func (g *Gate) Skip(t types.TestingTB) {
	t.Helper()
	if g.Installed() {
		return
	}
	if g.required() {
		t.Fatalf("%s is required but not installed: %v", g.name, g.err)
		return
	}
	t.Skipf("%s not installed: %v", g.name, g.err)
}

// Wrap returns a test func that is skipped when the server is not installed.
func (g *Gate) Wrap(fn func(t *testing.T)) func(t *testing.T) {
	return func(t *testing.T) {
		t.Helper()
		g.Skip(t)
		fn(t)
	}
}
