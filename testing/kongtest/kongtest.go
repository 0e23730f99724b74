// Package kongtest drives kong command lines in tests without exiting the test binary.
package kongtest

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

// Help renders the --help output of cli under the given program name. The exit
// hook does not stop parsing, so a cli that requires a command still fails
// validation after printing help; that error is ignored once help has exited.
func Help(t testing.TB, name string, cli any) string {
	t.Helper()
	w := bytes.NewBuffer(nil)
	rc := -1
	app, err := kong.New(cli,
		kong.Name(name),
		kong.Writers(w, w),
		kong.Exit(func(i int) {
			rc = i
		}),
	)
	assert.Assert(t, err)

	_, err = app.Parse([]string{"--help"})
	if rc != 0 {
		assert.Check(t, err)
	}
	assert.Check(t, cmp.Equal(0, rc))

	return w.String()
}

// Parse parses args into cli, returning the selected command context. Usage
// errors are returned rather than exiting.
func Parse(t testing.TB, cli any, args ...string) (*kong.Context, error) {
	t.Helper()
	w := bytes.NewBuffer(nil)
	app, err := kong.New(cli,
		kong.Name("test"),
		kong.Writers(w, w),
		kong.Exit(func(i int) {
			t.Fatalf("unexpected exit %d: %s", i, w.String())
		}),
	)
	assert.Assert(t, err)
	return app.Parse(args)
}
