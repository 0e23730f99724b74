// Package redis runs a private redis-server, persisting nothing by default.
package redis

import (
	"path/filepath"
	"slices"
	"strconv"

	goredis "github.com/go-redis/redis/v8"

	"github.com/circleci/ephemeral/binpath"
	"github.com/circleci/ephemeral/config/secret"
	"github.com/circleci/ephemeral/probe"
	"github.com/circleci/ephemeral/process"
	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/testing/skipgate"
)

var Resolver = binpath.Resolver{
	Env:     "EPHEMERAL_REDIS",
	Roots:   []string{"/usr/local/opt/redis", "/opt/homebrew/opt/redis", binpath.SearchPath},
	Subdirs: []string{"bin"},
}

var Gate = skipgate.ForBinary("redis-server", Resolver)

// Kind describes a redis server. Settings.Options are passed as --name value,
// and a "requirepass" option becomes the descriptor password.
func Kind() resource.Kind {
	return resource.Kind{
		Name:           "redis",
		Subdirectories: []string{"data"},
		Command: func(s resource.Settings, dir string, port int) (process.Command, error) {
			bin, err := Resolver.Find("redis-server")
			if err != nil {
				return process.Command{}, err
			}
			args := []string{
				"--port", strconv.Itoa(port),
				"--bind", s.Host,
				"--dir", filepath.Join(dir, "data"),
			}
			keys := make([]string, 0, len(s.Options))
			for k := range s.Options {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				args = append(args, "--"+k, s.Options[k])
			}
			return process.Command{Path: bin, Args: args}, nil
		},
		ProbeReady: probe.Redis(),
		Describe: func(s resource.Settings, d *resource.Descriptor) {
			d.Password = secret.String(s.Option("requirepass"))
			d.URL = secret.String("redis://" + d.Addr())
		},
		DefaultOptions: map[string]string{
			"save":       "",
			"appendonly": "no",
			"daemonize":  "no",
		},
	}
}

// Client returns a client for the server of c. The caller closes it.
func Client(c *resource.Controller) *goredis.Client {
	d := c.Descriptor()
	return goredis.NewClient(&goredis.Options{
		Addr:     d.Addr(),
		Password: d.Password.Raw(),
	})
}
