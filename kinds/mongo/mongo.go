/*
Package mongo runs a private mongod.

Database connects to it and returns an isolated database, the same way a
shared server would be carved up per test, but on a server nobody else uses.
*/
package mongo

import (
	"context"
	"path/filepath"
	"strconv"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/circleci/ephemeral/binpath"
	"github.com/circleci/ephemeral/config/secret"
	"github.com/circleci/ephemeral/o11y"
	"github.com/circleci/ephemeral/probe"
	"github.com/circleci/ephemeral/process"
	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/testing/skipgate"
)

var Resolver = binpath.Resolver{
	Env:     "EPHEMERAL_MONGOD",
	Roots:   []string{"/usr/local/opt/mongodb-community*", "/opt/homebrew/opt/mongodb-community*", binpath.SearchPath},
	Subdirs: []string{"bin"},
}

var Gate = skipgate.ForBinary("mongod", Resolver)

func Kind() resource.Kind {
	return resource.Kind{
		Name:           "mongo",
		Subdirectories: []string{"data", "tmp"},
		Command: func(s resource.Settings, dir string, port int) (process.Command, error) {
			bin, err := Resolver.Find("mongod")
			if err != nil {
				return process.Command{}, err
			}
			return process.Command{Path: bin, Args: []string{
				"--port", strconv.Itoa(port),
				"--bind_ip", s.Host,
				"--dbpath", filepath.Join(dir, "data"),
				"--unixSocketPrefix", filepath.Join(dir, "tmp"),
			}}, nil
		},
		ProbeReady: probe.Mongo(),
		Describe: func(_ resource.Settings, d *resource.Descriptor) {
			d.URL = secret.String(URI(*d))
		},
	}
}

// URI is the connection string of a mongo descriptor.
func URI(d resource.Descriptor) string {
	return "mongodb://" + d.Addr() + "/?directConnection=true"
}

// Database connects to the server of c and returns the named database. The
// returned func disconnects the client.
func Database(ctx context.Context, c *resource.Controller, name string) (_ *mongo.Database, disconnect func(context.Context) error, err error) {
	ctx, span := o11y.StartSpan(ctx, "mongo: database")
	defer o11y.End(span, &err)
	span.AddField("name", name)

	opts := options.Client().
		ApplyURI(URI(c.Descriptor())).
		SetAppName("ephemeral")
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	return client.Database(name), client.Disconnect, nil
}
