package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/ephemeral/binpath"
	"github.com/circleci/ephemeral/config"
	"github.com/circleci/ephemeral/config/secret"
	"github.com/circleci/ephemeral/freeport"
	"github.com/circleci/ephemeral/o11y"
	"github.com/circleci/ephemeral/probe"
	"github.com/circleci/ephemeral/process"
	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/termination"
)

var errExited = errors.New("server exited")

type runCmd struct {
	Name         string            `default:"server" help:"Name of the resource, used in logs and file names."`
	Dir          string            `type:"path" help:"Working directory, kept on exit. A temporary directory is used and removed by default."`
	Host         string            `default:"127.0.0.1" help:"Host the server listens on."`
	Port         int               `help:"Port for the server, a free one by default."`
	Probe        string            `default:"tcp" help:"Readiness probe: tcp, http:<path>, postgres, redis, mongo, s3, minio or amqp."`
	BootTimeout  time.Duration     `name:"boot-timeout" default:"10s" env:"EPHEMERAL_BOOT_TIMEOUT" help:"How long the server has to become ready."`
	KillTimeout  time.Duration     `name:"kill-timeout" default:"10s" env:"EPHEMERAL_KILL_TIMEOUT" help:"How long the server has to stop before it is killed."`
	CopyDataFrom string            `name:"copy-data-from" help:"Directory or .tar.zst snapshot to seed the data directory from."`
	Init         string            `help:"Command that initialises an empty data directory, placeholders are substituted."`
	User         string            `help:"User reported in the connection details, and used by the probe."`
	Password     secret.String     `env:"EPHEMERAL_PASSWORD" help:"Password reported in the connection details, and used by the probe."`
	Env          []string          `short:"e" help:"Extra KEY=VALUE environment for the server."`
	Params       map[string]string `help:"Extra connection parameters, e.g. region=eu-west-1."`

	Command []string `arg:"" passthrough:"" help:"Server command. {host} {port} {dir} and {data} are substituted."`
}

func (c *runCmd) Run(e *runEnv) error {
	kind, err := c.kind()
	if err != nil {
		return err
	}

	ctrl, err := resource.New(e.ctx, kind, resource.Settings{
		BaseDir:      c.Dir,
		Host:         c.Host,
		Port:         c.Port,
		BootTimeout:  c.BootTimeout,
		KillTimeout:  c.KillTimeout,
		CopyDataFrom: c.CopyDataFrom,
		Env:          c.Env,
	})
	if err != nil {
		return err
	}
	// signals are ours to handle until ctrl has stopped, not the reaper's
	sub := termination.Subscribe()
	defer sub.Close()
	defer ctrl.Stop(context.WithoutCancel(e.ctx))

	if err := writeDescriptor(e.out, ctrl); err != nil {
		return err
	}

	err = wait(e.ctx, ctrl, sub)
	switch {
	case errors.Is(err, termination.ErrTerminated):
		o11y.Log(e.ctx, "ephemeral: terminated")
		return nil
	case errors.Is(err, errExited):
		return fmt.Errorf("%w:\n%s", err, ctrl.Logs())
	}
	return err
}

func (c *runCmd) kind() (resource.Kind, error) {
	if len(c.Command) == 0 {
		return resource.Kind{}, errors.New("no server command given")
	}
	p, err := probe.Parse(c.Probe)
	if err != nil {
		return resource.Kind{}, err
	}

	kind := resource.Kind{
		Name:       c.Name,
		ProbeReady: p,
		Command: func(s resource.Settings, dir string, port int) (process.Command, error) {
			args := substitute(c.Command, placeholders(s.Host, port, dir))
			return process.Command{Path: args[0], Args: args[1:]}, nil
		},
		Describe: func(_ resource.Settings, d *resource.Descriptor) {
			d.User = c.User
			d.Password = c.Password
			for k, v := range c.Params {
				d.Params[k] = v
			}
		},
	}
	if c.Init != "" {
		initArgs := strings.Fields(c.Init)
		kind.InitializeData = func(ctx context.Context, s resource.Settings, dir string) error {
			args := substitute(initArgs, placeholders(s.Host, s.Port, dir))
			_, err := process.Run(ctx, process.Command{Path: args[0], Args: args[1:], Dir: dir})
			return err
		}
	}
	return kind, nil
}

func placeholders(host string, port int, dir string) map[string]string {
	return map[string]string{
		"{host}": host,
		"{port}": strconv.Itoa(port),
		"{dir}":  dir,
		"{data}": filepath.Join(dir, "data"),
	}
}

func substitute(args []string, values map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		for k, v := range values {
			a = strings.ReplaceAll(a, k, v)
		}
		out[i] = a
	}
	return out
}

// writeDescriptor prints the connection details as shell variable assignments.
func writeDescriptor(w io.Writer, c *resource.Controller) error {
	d := c.Descriptor()
	pid, _ := c.PID()
	lines := []string{
		"EPHEMERAL_HOST=" + d.Host,
		"EPHEMERAL_PORT=" + strconv.Itoa(d.Port),
		"EPHEMERAL_ADDR=" + d.Addr(),
		"EPHEMERAL_DIR=" + d.Dir,
		"EPHEMERAL_DATA_DIR=" + d.DataDir,
		"EPHEMERAL_PID=" + strconv.Itoa(pid),
	}
	if d.User != "" {
		lines = append(lines, "EPHEMERAL_USER="+d.User)
	}
	if d.URL != "" {
		lines = append(lines, "EPHEMERAL_URL="+d.URL.Raw())
	}
	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, "EPHEMERAL_PARAM_"+strings.ToUpper(k)+"="+d.Params[k])
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// wait blocks until a terminate signal arrives, ctx is done or the server exits.
func wait(ctx context.Context, c *resource.Controller, sub *termination.Subscription) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sub.Wait(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if !c.IsAlive() {
					return errExited
				}
			}
		}
	})
	return g.Wait()
}

type portCmd struct {
	Count int `arg:"" optional:"" default:"1" help:"How many distinct ports."`
}

func (c *portCmd) Run(e *runEnv) error {
	ports, err := freeport.GetN(c.Count)
	if err != nil {
		return err
	}
	for _, p := range ports {
		if _, err := fmt.Fprintln(e.out, p); err != nil {
			return err
		}
	}
	return nil
}

type findCmd struct {
	Name    string   `arg:"" help:"Executable name."`
	Root    []string `short:"r" help:"Root to search, in order. Globs are allowed, $PATH stands for the search path."`
	Subdir  []string `short:"s" help:"Subdirectory to try below each root."`
	EnvName string   `name:"env" help:"Environment variable that overrides the search."`
}

func (c *findCmd) Run(e *runEnv) error {
	roots := c.Root
	if len(roots) == 0 {
		roots = []string{binpath.SearchPath}
	}
	path, err := binpath.Resolver{Env: c.EnvName, Roots: roots, Subdirs: c.Subdir}.Find(c.Name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.out, path)
	return err
}

type envCmd struct{}

func (c *envCmd) Run(e *runEnv) error {
	_, loadErr := config.Load()
	for _, v := range config.Vars() {
		if _, err := fmt.Fprintln(e.out, v.String()); err != nil {
			return err
		}
	}
	return loadErr
}
