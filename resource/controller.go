/*
Package resource runs a server process (postgres, redis, minio...) as a throwaway
resource for tests.

A Controller owns one working directory, one port and at most one server
process. It drives the process through its lifecycle:

	Created → Initializing → DataReady → Starting → Probing → Running → Stopping → Stopped

Construction either returns a running server, or an error with nothing left
behind. Stop is idempotent and never fails the caller, problems during teardown
are reported through Settings.Warn and the o11y provider in the context.

What makes a server a postgres or a redis is a Kind, a set of functions
describing how to initialise, launch and probe it.
*/
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/circleci/ephemeral/config"
	"github.com/circleci/ephemeral/freeport"
	"github.com/circleci/ephemeral/o11y"
	"github.com/circleci/ephemeral/process"
	"github.com/circleci/ephemeral/termination"
	"github.com/circleci/ephemeral/testing/poll"
)

// outputTail is how much of the server output is kept in start errors.
const outputTail = 8 * 1024

type Controller struct {
	*instance
	cleanup     runtime.Cleanup
	cleanupOnce sync.Once
}

// instance is everything a controller owns. It never refers back to the
// Controller so that an abandoned Controller can be collected and its
// instance torn down.
type instance struct {
	id       string
	kind     Kind
	settings Settings
	env      config.Environment

	dir     string
	ownsDir bool
	dataDir string
	port    int

	mu      sync.Mutex
	state   State
	proc    *process.Process
	logFile *os.File

	// serialises teardown, which may be reached concurrently from Stop, a
	// failed start and the termination reaper
	teardownMu sync.Mutex
	unregister func()
}

// New prepares and starts a server of the given kind. On error nothing is left
// running and any self owned working directory has been removed.
func New(ctx context.Context, kind Kind, s Settings) (*Controller, error) {
	c, err := Prepare(ctx, kind, s)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Prepare sets up the working directory, port and data, without starting the
// server. Start it with Start, or discard it with Stop.
func Prepare(ctx context.Context, kind Kind, s Settings) (_ *Controller, err error) {
	if kind.Name == "" || kind.Command == nil {
		return nil, errors.New("resource: a kind needs a name and a command")
	}

	ctx, span := o11y.StartSpan(ctx, "resource: initialize")
	defer o11y.End(span, &err)
	span.AddField("kind", kind.Name)

	settings, err := s.resolve(kind)
	if err != nil {
		return nil, &InitError{Kind: kind.Name, Err: err}
	}

	in := &instance{
		id:       uuid.NewString(),
		kind:     kind,
		settings: settings,
		env:      config.Get(),
		state:    Initializing,
	}
	span.AddField("id", in.id)
	in.unregister = termination.Register(in.abandoned)

	if err := in.initialize(ctx); err != nil {
		in.fail(ctx)
		return nil, err
	}
	span.AddField("dir", in.dir)
	span.AddField("port", in.port)
	if !in.advance(Initializing, DataReady) {
		return nil, &InitError{Kind: kind.Name, Err: fmt.Errorf("stopped while initializing: %w", ErrState)}
	}

	c := &Controller{instance: in}
	c.cleanup = runtime.AddCleanup(c, func(in *instance) {
		go in.abandoned(context.Background())
	}, in)
	return c, nil
}

func (in *instance) initialize(ctx context.Context) error {
	initErr := func(err error) error {
		return &InitError{Kind: in.kind.Name, Err: err}
	}

	if err := in.makeDir(); err != nil {
		return initErr(err)
	}

	in.port = in.settings.Port
	if in.port == 0 {
		port, err := freeport.Get()
		if err != nil {
			return initErr(err)
		}
		in.port = port
		in.settings.Port = port
	}

	for _, sub := range in.kind.Subdirectories {
		if err := os.MkdirAll(filepath.Join(in.dir, sub), 0o700); err != nil {
			return initErr(err)
		}
	}

	in.dataDir = in.kind.dataDirectory(in.dir)
	if src := in.settings.CopyDataFrom; src != "" {
		if err := copyData(src, in.dataDir); err != nil {
			return initErr(fmt.Errorf("failed to copy data from %s: %w", src, err))
		}
		if err := os.Chmod(in.dataDir, 0o700); err != nil {
			return initErr(err)
		}
	}

	if in.kind.InitializeData == nil || in.kind.initialized(in.dataDir) {
		return nil
	}
	o11y.Log(ctx, "resource: initializing data", o11y.Field("data_dir", in.dataDir))
	if err := in.kind.InitializeData(ctx, in.settings, in.dir); err != nil {
		e := &InitError{Kind: in.kind.Name, Err: err}
		var exitErr *process.ExitError
		if errors.As(err, &exitErr) {
			e.Output = exitErr.Output
		}
		return e
	}
	return nil
}

func (in *instance) makeDir() error {
	if in.settings.BaseDir == "" {
		dir, err := os.MkdirTemp(in.env.TempRoot, "ephemeral-"+fileName(in.kind.Name)+"-")
		if err != nil {
			return err
		}
		in.dir = dir
		in.ownsDir = true
		return nil
	}

	in.dir = in.settings.BaseDir
	if err := os.MkdirAll(in.dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(in.dir, ".ephemeral-*")
	if err != nil {
		return fmt.Errorf("working directory is not writable: %w", err)
	}
	_ = f.Close()
	return os.Remove(f.Name())
}

// Start spawns the server and waits for it to be ready. Starting a running
// controller does nothing.
func (c *Controller) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	switch c.state {
	case Running:
		c.mu.Unlock()
		return nil
	case DataReady:
		c.state = Starting
		c.mu.Unlock()
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%s: cannot start a %s resource: %w", c.kind.Name, state, ErrState)
	}

	ctx, span := o11y.StartSpan(ctx, "resource: start")
	defer o11y.End(span, &err)
	span.AddField("kind", c.kind.Name)
	span.AddField("id", c.id)
	span.AddField("port", c.port)

	if err := c.launch(ctx); err != nil {
		c.fail(ctx)
		return err
	}
	if pid, ok := c.PID(); ok {
		span.AddField("pid", pid)
	}

	if c.settings.OnReady != nil {
		if err := c.settings.OnReady(ctx, c); err != nil {
			c.fail(ctx)
			return fmt.Errorf("%s: on ready: %w", c.kind.Name, err)
		}
	}
	return nil
}

func (c *Controller) launch(ctx context.Context) error {
	startErr := func(err error) error {
		return &StartError{Kind: c.kind.Name, Err: err}
	}

	if c.kind.PreStart != nil {
		if err := c.kind.PreStart(ctx, c); err != nil {
			return startErr(fmt.Errorf("pre start: %w", err))
		}
	}

	cmd, err := c.kind.Command(c.settings, c.dir, c.port)
	if err != nil {
		return startErr(err)
	}
	if cmd.Dir == "" {
		cmd.Dir = c.dir
	}
	cmd.Env = append(cmd.Env, c.settings.Env...)

	logFile, err := os.OpenFile(filepath.Join(c.dir, fileName(c.kind.Name)+".log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return startErr(err)
	}
	c.mu.Lock()
	c.logFile = logFile
	c.mu.Unlock()
	if cmd.Output != nil {
		cmd.Output = io.MultiWriter(cmd.Output, logFile)
	} else {
		cmd.Output = logFile
	}

	proc, err := process.Start(cmd)
	if err != nil {
		return startErr(err)
	}

	c.mu.Lock()
	if c.state != Starting {
		// torn down by the reaper while spawning
		c.mu.Unlock()
		_ = proc.Kill()
		_ = logFile.Close()
		return startErr(fmt.Errorf("stopped while starting: %w", ErrState))
	}
	c.proc = proc
	c.mu.Unlock()

	if c.kind.PostStart != nil {
		if err := c.kind.PostStart(ctx, c); err != nil {
			c.warn(ctx, o11y.Warnf("%s: post start: %v", c.kind.Name, err))
		}
	}

	if !c.advance(Starting, Probing) {
		return startErr(fmt.Errorf("stopped while starting: %w", ErrState))
	}
	if err := c.waitReady(ctx, proc); err != nil {
		return &StartError{Kind: c.kind.Name, Output: proc.Tail(outputTail), Err: err}
	}
	if !c.advance(Probing, Running) {
		return startErr(fmt.Errorf("stopped while probing: %w", ErrState))
	}
	return nil
}

func (c *Controller) waitReady(ctx context.Context, proc *process.Process) (err error) {
	ctx, span := o11y.StartSpan(ctx, "resource: probe")
	defer o11y.End(span, &err)
	span.AddField("boot_timeout", c.settings.BootTimeout)

	probe := c.kind.probe()
	attempts := 0
	err = poll.ForIt(ctx, c.settings.BootTimeout, c.settings.ProbeInterval, func(ctx context.Context) (bool, error) {
		attempts++
		if !proc.Alive() {
			return true, exited(proc)
		}
		err := probe(ctx, c.settings, c.Descriptor())
		if err == nil {
			return true, nil
		}
		// a failed probe of a process that has gone will never succeed
		if !proc.Alive() {
			return true, exited(proc)
		}
		return false, err
	})
	span.AddField("attempts", attempts)

	var timeoutErr *poll.TimeoutError
	if errors.As(err, &timeoutErr) {
		if timeoutErr.Last == nil {
			return fmt.Errorf("%w after %s", ErrTimeout, timeoutErr.Duration)
		}
		return fmt.Errorf("%w after %s: %w", ErrTimeout, timeoutErr.Duration, timeoutErr.Last)
	}
	return err
}

func exited(proc *process.Process) error {
	<-proc.Exited()
	if err := proc.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrExited, err)
	}
	return fmt.Errorf("%w: exit status 0", ErrExited)
}

// Stop terminates the server and removes a self owned working directory. It
// can be called any number of times, problems are reported through
// Settings.Warn and never returned.
func (c *Controller) Stop(ctx context.Context) {
	c.cleanupOnce.Do(c.cleanup.Stop)
	if err := c.teardown(ctx, Stopped); err != nil {
		c.warn(ctx, err)
	}
}

// fail tears down a controller whose preparation or start failed. It runs to
// completion even when ctx was cancelled, a failed start never leaves a
// process behind.
func (in *instance) fail(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := in.teardown(ctx, Failed); err != nil {
		in.warn(ctx, err)
	}
}

// abandoned is the teardown of last resort, for controllers that were never
// stopped: run by the termination reaper on a signal or from TestMain, or once
// the Controller is garbage collected.
func (in *instance) abandoned(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			termination.Report(ctx, fmt.Errorf("%s: teardown panic: %v", in.kind.Name, r))
		}
	}()

	if in.State().terminal() {
		return
	}
	err := o11y.Warnf("%s resource in %s was not stopped", in.kind.Name, in.dir)
	if terr := in.teardown(ctx, Stopped); terr != nil {
		err = multierror.Append(err, terr)
	}
	termination.Report(ctx, err)
	if in.settings.Warn != nil {
		in.settings.Warn(err)
	}
}

func (in *instance) teardown(ctx context.Context, final State) (err error) {
	in.teardownMu.Lock()
	defer in.teardownMu.Unlock()

	in.mu.Lock()
	if in.state.terminal() {
		in.mu.Unlock()
		return nil
	}
	in.state = Stopping
	proc, logFile := in.proc, in.logFile
	in.mu.Unlock()

	ctx, span := o11y.StartSpan(ctx, "resource: stop")
	defer o11y.End(span, &err)
	span.AddField("kind", in.kind.Name)
	span.AddField("id", in.id)
	span.AddField("dir", in.dir)

	var result error
	if proc != nil {
		span.AddField("pid", proc.PID())
		if err := proc.Stop(ctx, in.kind.terminateSignal(), in.settings.KillTimeout); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if logFile != nil {
		if err := logFile.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if in.unregister != nil {
		in.unregister()
	}
	if err := in.removeDir(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to remove %s: %w", in.dir, err))
	}

	in.setState(final)
	span.AddField("state", final)
	if result != nil {
		return o11y.Warn(fmt.Errorf("%s: teardown: %w", in.kind.Name, result))
	}
	return nil
}

func (in *instance) removeDir(ctx context.Context) error {
	if !in.ownsDir || in.dir == "" {
		return nil
	}
	if in.env.PreserveDirs {
		o11y.Log(ctx, "resource: preserved working directory", o11y.Field("dir", in.dir))
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return backoff.Retry(func() error {
		return os.RemoveAll(in.dir)
	}, backoff.WithContext(b, ctx))
}

func (in *instance) warn(ctx context.Context, err error) {
	o11y.LogError(ctx, "resource: warning", err, o11y.Field("kind", in.kind.Name))
	if in.settings.Warn != nil {
		in.settings.Warn(err)
	}
}

func (in *instance) setState(s State) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state = s
}

// advance moves to next only from from, so a concurrent teardown is never undone.
func (in *instance) advance(from, next State) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != from {
		return false
	}
	in.state = next
	return true
}

// State is the current lifecycle state.
func (in *instance) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// IsAlive asks the operating system whether the server process is running,
// whatever the lifecycle state says. It never blocks.
func (in *instance) IsAlive() bool {
	in.mu.Lock()
	proc := in.proc
	in.mu.Unlock()
	return proc != nil && proc.Alive()
}

// PID is the server process id. It is only available while running.
func (in *instance) PID() (int, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != Running || in.proc == nil {
		return 0, false
	}
	return in.proc.PID(), true
}

// Logs returns the combined output of the server so far. It is also written
// to <kind>.log in the working directory.
func (in *instance) Logs() string {
	in.mu.Lock()
	proc := in.proc
	in.mu.Unlock()
	if proc == nil {
		return ""
	}
	return proc.Logs()
}

// ID uniquely identifies the controller in logs.
func (in *instance) ID() string {
	return in.id
}

func (in *instance) Kind() string {
	return in.kind.Name
}

// Dir is the working directory.
func (in *instance) Dir() string {
	return in.dir
}

// DataDir is where the server keeps its data, inside Dir.
func (in *instance) DataDir() string {
	return in.dataDir
}

func (in *instance) Port() int {
	return in.port
}

// Settings returns the resolved settings, defaults applied and port allocated.
func (in *instance) Settings() Settings {
	s := in.settings
	s.Env = slices.Clone(s.Env)
	s.Options = maps.Clone(s.Options)
	return s
}

// Descriptor returns the connection parameters of the server. It is computed
// afresh on every call.
func (in *instance) Descriptor() Descriptor {
	d := Descriptor{
		Host:    in.settings.Host,
		Port:    in.port,
		Dir:     in.dir,
		DataDir: in.dataDir,
		Params:  map[string]string{},
	}
	if in.kind.Describe != nil {
		in.kind.Describe(in.settings, &d)
	}
	return d
}

func fileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, s)
}
