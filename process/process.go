/*
Package process starts and stops the child processes behind ephemeral resources.

A Process captures all of its output, can be probed for liveness without blocking,
and is stopped by sending it a signal, waiting a bounded grace period, and killing
it if it has not gone by then. On unix the child leads its own process group and
signals are sent to the whole group.
*/
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/circleci/ephemeral/internal/syncbuffer"
)

// ErrKilled is returned by Stop when the process had to be force killed.
var ErrKilled = errors.New("process killed")

// waitDelay bounds how long Wait keeps copying output once the process has exited,
// in case the server left descendants holding its stdout open.
const waitDelay = 2 * time.Second

// Command describes a process to start.
type Command struct {
	Path string
	Args []string
	// Env is appended to the environment of the current process.
	Env []string
	Dir string
	// Output, when set, receives a copy of everything the process writes.
	Output io.Writer
}

func (c Command) String() string {
	return fmt.Sprintf("%s %q", c.Path, c.Args)
}

func (c Command) build(cmd *exec.Cmd, out io.Writer) {
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	if c.Output != nil {
		out = io.MultiWriter(out, c.Output)
	}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay
}

type Process struct {
	cmd  *exec.Cmd
	logs *syncbuffer.SyncBuffer

	done    chan struct{}
	waitErr error
}

// Start the process described by c. An error is returned if the process could
// not be spawned at all, e.g. the executable is missing or not executable.
func Start(c Command) (*Process, error) {
	//#nosec:G204 // running caller supplied commands is the point of this package
	cmd := exec.Command(c.Path, c.Args...)

	p := &Process{
		cmd:  cmd,
		logs: &syncbuffer.SyncBuffer{},
		done: make(chan struct{}),
	}
	c.build(cmd, p.logs)
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// PID is the operating system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Alive reports whether the process is still running. It never blocks.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Exited is closed once the process has exited and its output has been collected.
func (p *Process) Exited() <-chan struct{} {
	return p.done
}

// Err is the exit error once the process has exited, nil for a clean exit or a
// still running process.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Logs returns the combined stdout and stderr of the process so far.
func (p *Process) Logs() string {
	return p.logs.String()
}

// Tail returns at most the last n bytes of output.
func (p *Process) Tail(n int) string {
	return p.logs.Tail(n)
}

// Signal sends sig to the process (its group on unix). It returns
// os.ErrProcessDone if the process has already exited.
func (p *Process) Signal(sig os.Signal) error {
	if !p.Alive() {
		return os.ErrProcessDone
	}
	return signalGroup(p.cmd.Process, sig)
}

// Kill force kills the process and waits for it to go.
func (p *Process) Kill() error {
	if !p.Alive() {
		return nil
	}
	if err := killGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill: %w", err)
	}
	<-p.done
	return nil
}

// Stop sends sig and waits up to grace for the process to exit, killing it after
// that. It is safe to call on an exited process. ErrKilled is returned when the
// grace period ran out.
func (p *Process) Stop(ctx context.Context, sig os.Signal, grace time.Duration) error {
	if !p.Alive() {
		return nil
	}

	err := p.Signal(sig)
	switch {
	case errors.Is(err, os.ErrProcessDone):
		return nil
	case err != nil:
		// some platforms cannot deliver anything but kill
		if kerr := p.Kill(); kerr != nil {
			return fmt.Errorf("failed to signal %v: %w", sig, kerr)
		}
		return nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
	case <-timer.C:
	}

	if err := p.Kill(); err != nil {
		return err
	}
	return fmt.Errorf("%v timed out after %s: %w", sig, grace, ErrKilled)
}

// ExitError is returned by Run when a command cannot be spawned or exits non zero.
type ExitError struct {
	Command Command
	// Code is the exit code, -1 when the command never ran or was killed by a signal.
	Code   int
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Command.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command.Path, e.Err, e.Output)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Run runs c to completion, as used for one shot tools such as data
// initialisation. The combined output is returned; a spawn failure or non zero
// exit is an *ExitError carrying that output.
func Run(ctx context.Context, c Command) (string, error) {
	//#nosec:G204 // running caller supplied commands is the point of this package
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	out := &syncbuffer.SyncBuffer{}
	c.build(cmd, out)

	err := cmd.Run()
	if err == nil {
		return out.String(), nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return out.String(), &ExitError{
		Command: c,
		Code:    code,
		Output:  out.String(),
		Err:     err,
	}
}
