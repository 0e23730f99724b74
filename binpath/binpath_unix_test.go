//go:build unix

package binpath

import (
	"errors"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
)

const script = "#!/bin/sh\nexit 0\n"

func TestFind(t *testing.T) {
	first := fs.NewDir(t, "first",
		fs.WithDir("bin"),
		fs.WithFile("server", "not executable", fs.WithMode(0o644)),
	)
	second := fs.NewDir(t, "second",
		fs.WithDir("bin", fs.WithFile("server", script, fs.WithMode(0o755))),
		fs.WithDir("sbin", fs.WithFile("server", script, fs.WithMode(0o755))),
	)

	t.Run("first executable in root order wins", func(t *testing.T) {
		got, err := Resolver{
			Roots:   []string{first.Path(), second.Path()},
			Subdirs: []string{"", "sbin", "bin"},
		}.Find("server")
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(got, filepath.Join(second.Path(), "sbin", "server")))
	})

	t.Run("non executable files are skipped", func(t *testing.T) {
		_, err := Find("server", first.Path())
		assert.Check(t, cmp.ErrorIs(err, ErrNotFound))
	})

	t.Run("not found lists what was searched", func(t *testing.T) {
		_, err := Resolver{Roots: []string{first.Path()}, Subdirs: []string{"bin"}}.Find("missing")
		var nf *NotFoundError
		assert.Assert(t, errors.As(err, &nf))
		assert.Check(t, cmp.Equal(nf.Name, "missing"))
		assert.Check(t, cmp.DeepEqual(nf.Searched, []string{filepath.Join(first.Path(), "bin", "missing")}))
	})

	t.Run("search path only when asked", func(t *testing.T) {
		t.Setenv("PATH", filepath.Join(second.Path(), "bin"))

		_, err := Find("server", first.Path())
		assert.Check(t, cmp.ErrorIs(err, ErrNotFound))

		got, err := Find("server", first.Path(), SearchPath)
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(got, filepath.Join(second.Path(), "bin", "server")))
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("TEST_SERVER_BIN", filepath.Join(second.Path(), "bin", "server"))
		got, err := Resolver{Env: "TEST_SERVER_BIN", Roots: []string{first.Path()}}.Find("server")
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(got, filepath.Join(second.Path(), "bin", "server")))

		t.Setenv("TEST_SERVER_BIN", filepath.Join(first.Path(), "server"))
		_, err = Resolver{Env: "TEST_SERVER_BIN", Roots: []string{second.Path()}, Subdirs: []string{"bin"}}.Find("server")
		assert.Check(t, cmp.ErrorIs(err, ErrNotFound), "an explicit override is never second guessed")
	})
}

func TestFind_GlobRootsPreferHighestVersion(t *testing.T) {
	versions := fs.NewDir(t, "versions",
		fs.WithDir("9.6", fs.WithDir("bin", fs.WithFile("postgres", script, fs.WithMode(0o755)))),
		fs.WithDir("16", fs.WithDir("bin", fs.WithFile("postgres", script, fs.WithMode(0o755)))),
		fs.WithDir("10", fs.WithDir("bin", fs.WithFile("postgres", script, fs.WithMode(0o755)))),
	)

	got, err := Resolver{
		Roots:   []string{filepath.Join(versions.Path(), "*")},
		Subdirs: []string{"bin"},
	}.Find("postgres")
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(got, filepath.Join(versions.Path(), "16", "bin", "postgres")))
}

func TestNaturalLess(t *testing.T) {
	assert.Check(t, naturalLess("pg/9.6", "pg/16"))
	assert.Check(t, naturalLess("pg/10", "pg/16"))
	assert.Check(t, !naturalLess("pg/16", "pg/16"))
	assert.Check(t, naturalLess("pg/16", "pg/16.1"))
	assert.Check(t, naturalLess("a", "b"))
}
