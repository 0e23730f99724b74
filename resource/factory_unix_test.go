//go:build unix

package resource_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/ephemeral/internal/fake"
	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/testing/resourcetest"
	"github.com/circleci/ephemeral/testing/testcontext"
)

func TestFactory_CacheInitialized(t *testing.T) {
	srv := newServer()
	f := resourcetest.NewFactory(t, srv.Kind(), resource.Settings{}, resource.FactoryOptions{
		CacheInitialized: true,
	})
	assert.Check(t, cmp.Equal(srv.Inits(), 1), "the template is initialised up front")

	first := resourcetest.NewFromFactory(t, f)
	second := resourcetest.NewFromFactory(t, f)
	third := resourcetest.NewFromFactory(t, f)
	assert.Check(t, cmp.Equal(srv.Inits(), 1), "initialised exactly once")

	stamp := httpBody(t, first, "/data")
	assert.Check(t, cmp.Equal(httpBody(t, second, "/data"), stamp))
	assert.Check(t, cmp.Equal(httpBody(t, third, "/data"), stamp))
	assert.Check(t, first.Dir() != second.Dir())

	t.Run("instances get private copies", func(t *testing.T) {
		err := os.WriteFile(filepath.Join(first.DataDir(), fake.Store), []byte("mine"), 0o600)
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(httpBody(t, first, "/data"), "mine"))
		assert.Check(t, cmp.Equal(httpBody(t, second, "/data"), stamp))

		fourth := resourcetest.NewFromFactory(t, f)
		assert.Check(t, cmp.Equal(httpBody(t, fourth, "/data"), stamp))
	})
}

func TestFactory_WithoutCache(t *testing.T) {
	srv := newServer()
	f := resourcetest.NewFactory(t, srv.Kind(), resource.Settings{}, resource.FactoryOptions{})
	assert.Check(t, cmp.Equal(srv.Inits(), 0))

	_ = resourcetest.NewFromFactory(t, f)
	_ = resourcetest.NewFromFactory(t, f)
	assert.Check(t, cmp.Equal(srv.Inits(), 2))

	assert.Check(t, cmp.ErrorIs(f.Snapshot(filepath.Join(t.TempDir(), "x"+resource.ArchiveExt)), resource.ErrNoTemplate))
}

func TestFactory_OnInitialized(t *testing.T) {
	ctx := testcontext.Background()

	t.Run("runs once against the running template", func(t *testing.T) {
		calls := 0
		f := resourcetest.NewFactory(t, newServer().Kind(), resource.Settings{}, resource.FactoryOptions{
			CacheInitialized: true,
			OnInitialized: func(_ context.Context, c *resource.Controller) error {
				calls++
				assert.Check(t, c.IsAlive())
				return os.WriteFile(filepath.Join(c.DataDir(), "schema.sql"), []byte("migrated"), 0o600)
			},
		})
		c1 := resourcetest.NewFromFactory(t, f)
		c2 := resourcetest.NewFromFactory(t, f)
		assert.Check(t, cmp.Equal(calls, 1))

		for _, c := range []*resource.Controller{c1, c2} {
			b, err := os.ReadFile(filepath.Join(c.DataDir(), "schema.sql"))
			assert.Check(t, err)
			assert.Check(t, cmp.Equal(string(b), "migrated"))
		}
	})

	t.Run("failure fails the factory", func(t *testing.T) {
		_, err := resource.NewFactory(ctx, newServer().Kind(), resource.Settings{}, resource.FactoryOptions{
			CacheInitialized: true,
			OnInitialized: func(context.Context, *resource.Controller) error {
				return errors.New("migration failed")
			},
		})
		assert.Check(t, cmp.ErrorContains(err, "migration failed"))
	})
}

func TestFactory_Snapshot(t *testing.T) {
	ctx := testcontext.Background()
	srv := newServer()
	f := resourcetest.NewFactory(t, srv.Kind(), resource.Settings{}, resource.FactoryOptions{
		CacheInitialized: true,
	})
	stamp := httpBody(t, resourcetest.NewFromFactory(t, f), "/data")

	snapshot := filepath.Join(t.TempDir(), "fakeserver"+resource.ArchiveExt)
	assert.Assert(t, f.Snapshot(snapshot))
	assert.Check(t, cmp.ErrorContains(f.Snapshot(filepath.Join(t.TempDir(), "fakeserver.tar")), "must end in"))

	later := newServer()
	c := resourcetest.New(t, later.Kind(), resource.Settings{CopyDataFrom: snapshot})
	assert.Check(t, cmp.Equal(later.Inits(), 0))
	assert.Check(t, cmp.Equal(httpBody(t, c, "/data"), stamp))

	t.Run("close clears the cache", func(t *testing.T) {
		f.Close(ctx)
		f.Close(ctx)
		assert.Check(t, cmp.ErrorIs(f.Snapshot(snapshot), resource.ErrNoTemplate))

		_ = resourcetest.NewFromFactory(t, f)
		assert.Check(t, cmp.Equal(srv.Inits(), 2), "without a template every instance initialises")
	})
}
