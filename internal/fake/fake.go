// Package fake builds the fake server and describes it as a resource kind, so
// the controller can be exercised end to end without a real database installed.
package fake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/circleci/ephemeral/config/secret"
	"github.com/circleci/ephemeral/probe"
	"github.com/circleci/ephemeral/process"
	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/testing/compiler"
)

// Options understood by the fake kind.
const (
	OptBootDelay  = "boot-delay"
	OptExitAfter  = "exit-after"
	OptIgnoreTerm = "ignore-term"
	OptInitFail   = "init-fail"
)

// Store is the file the fake server writes during init and serves on /data.
const Store = "store.dat"

// Build compiles the fake server with c.
func Build(ctx context.Context, c *compiler.Compiler) (string, error) {
	root, err := moduleRoot()
	if err != nil {
		return "", err
	}
	return c.Compile(ctx, compiler.Work{
		Name:   "fakeserver",
		Target: root,
		Source: "./internal/fakeserver",
	})
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found")
		}
		dir = parent
	}
}

// Server describes a built fake server.
type Server struct {
	Binary string

	inits atomic.Int32
}

// Inits counts the data initialisations run through the kind.
func (s *Server) Inits() int {
	return int(s.inits.Load())
}

// Kind returns the fake server as a resource kind, probed over HTTP.
func (s *Server) Kind() resource.Kind {
	return resource.Kind{
		Name:           "fakeserver",
		Subdirectories: []string{"tmp"},
		InitializeData: func(ctx context.Context, st resource.Settings, dir string) error {
			s.inits.Add(1)
			args := []string{"init", "--data-dir", filepath.Join(dir, "data")}
			if st.Option(OptInitFail) == "true" {
				args = append(args, "--fail")
			}
			_, err := process.Run(ctx, process.Command{Path: s.Binary, Args: args})
			return err
		},
		Command: func(st resource.Settings, dir string, port int) (process.Command, error) {
			args := []string{"serve",
				"--host", st.Host,
				"--port", strconv.Itoa(port),
				"--data-dir", filepath.Join(dir, "data"),
			}
			if v := st.Option(OptBootDelay); v != "" {
				args = append(args, "--boot-delay", v)
			}
			if v := st.Option(OptExitAfter); v != "" {
				args = append(args, "--exit-after", v)
			}
			if st.Option(OptIgnoreTerm) == "true" {
				args = append(args, "--ignore-term")
			}
			return process.Command{Path: s.Binary, Args: args}, nil
		},
		ProbeReady: probe.HTTP("/ready"),
		Describe: func(_ resource.Settings, d *resource.Descriptor) {
			d.URL = secret.String("http://" + d.Addr())
		},
	}
}
