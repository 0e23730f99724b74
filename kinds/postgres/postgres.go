/*
Package postgres runs a private PostgreSQL server per test or per test package.

The data directory is created with initdb on first use, trusting local
connections for the postgres superuser, and the server listens on its own port
and unix socket directory:

	c := resourcetest.New(t, postgres.Kind(), resource.Settings{})
	conn, err := pgx.Connect(ctx, postgres.URL(c))

Pair it with resource.Factory and CacheInitialized to run initdb once per
package rather than once per test.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/circleci/ephemeral/binpath"
	"github.com/circleci/ephemeral/config/secret"
	"github.com/circleci/ephemeral/o11y"
	"github.com/circleci/ephemeral/probe"
	"github.com/circleci/ephemeral/process"
	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/testing/skipgate"
)

const (
	// User is the superuser created by initdb.
	User = "postgres"
	// Database always exists after initdb.
	Database = "postgres"
)

// Resolver finds the postgres and initdb executables, preferring the newest
// installed version.
var Resolver = binpath.Resolver{
	Env: "EPHEMERAL_POSTGRES",
	Roots: []string{
		"/usr/local/pgsql",
		"/usr/lib/postgresql/*",
		"/usr/local/opt/postgresql*",
		"/opt/homebrew/opt/postgresql*",
		binpath.SearchPath,
	},
	Subdirs: []string{"bin"},
}

// Gate skips tests when postgres is not installed. Postgres refuses to run as
// root, so it also counts as missing then.
var Gate = skipgate.New("postgres", func() error {
	if os.Geteuid() == 0 {
		return errors.New("postgres cannot run as root")
	}
	_, err := Resolver.Find("postgres")
	return err
})

// Kind describes a postgres server. Settings.Options are passed to the server
// as -c name=value.
func Kind() resource.Kind {
	return resource.Kind{
		Name:           "postgres",
		Subdirectories: []string{"tmp"},
		Initialized: func(dataDir string) bool {
			_, err := os.Stat(filepath.Join(dataDir, "PG_VERSION"))
			return err == nil
		},
		InitializeData: initdb,
		Command:        command,
		// SIGINT is the fast shutdown: clients are disconnected without waiting.
		TerminateSignal: os.Interrupt,
		ProbeReady:      probe.Postgres(),
		Describe: func(_ resource.Settings, d *resource.Descriptor) {
			d.User = User
			d.Database = Database
			d.Params["sslmode"] = "disable"
			d.URL = secret.String(probe.PostgresURL(*d))
		},
		DefaultOptions: map[string]string{
			"fsync":              "off",
			"full_page_writes":   "off",
			"synchronous_commit": "off",
			"logging_collector":  "off",
		},
	}
}

func initdb(ctx context.Context, _ resource.Settings, dir string) error {
	bin, err := sibling("initdb")
	if err != nil {
		return err
	}
	_, err = process.Run(ctx, process.Command{
		Path: bin,
		Args: []string{"-D", filepath.Join(dir, "data"), "-U", User, "-A", "trust", "-E", "UTF8"},
		Env:  []string{"LC_ALL=C"},
	})
	return err
}

func command(s resource.Settings, dir string, port int) (process.Command, error) {
	bin, err := Resolver.Find("postgres")
	if err != nil {
		return process.Command{}, err
	}
	args := []string{
		"-D", filepath.Join(dir, "data"),
		"-p", fmt.Sprint(port),
		"-h", s.Host,
		"-k", filepath.Join(dir, "tmp"),
	}
	keys := make([]string, 0, len(s.Options))
	for k := range s.Options {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "-c", k+"="+s.Options[k])
	}
	return process.Command{Path: bin, Args: args}, nil
}

// sibling finds a tool installed next to the postgres server.
func sibling(name string) (string, error) {
	server, err := Resolver.Find("postgres")
	if err != nil {
		return "", err
	}
	return binpath.Find(name, filepath.Dir(server), binpath.SearchPath)
}

// URL is the connection string for the default database of c.
func URL(c *resource.Controller) string {
	return probe.PostgresURL(c.Descriptor())
}

// CreateDatabase creates a database on the server of c and returns its
// connection string. The name is quoted as an identifier.
func CreateDatabase(ctx context.Context, c *resource.Controller, name string) (_ string, err error) {
	ctx, span := o11y.StartSpan(ctx, "postgres: create database")
	defer o11y.End(span, &err)
	span.AddField("dbname", name)

	conn, err := pgx.Connect(ctx, URL(c))
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()

	_, err = conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	if err != nil {
		return "", fmt.Errorf("create database %q: %w", name, err)
	}

	d := c.Descriptor()
	d.Database = name
	d.URL = ""
	return probe.PostgresURL(d), nil
}
