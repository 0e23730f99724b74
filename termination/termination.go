// Package termination deals with the end of the process: waiting for a terminate
// signal, and reaping resources that were abandoned without being stopped.
package termination

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/ephemeral/o11y"
)

var ErrTerminated = errors.New("terminated")

// Handle blocks until the process receives an interrupt or terminate signal,
// returning ErrTerminated, or until ctx is done, returning nil.
func Handle(ctx context.Context) error {
	sub := Subscribe()
	defer sub.Close()
	return sub.Wait(ctx)
}

// Subscription takes interrupt and terminate signals for its owner: while any
// subscription is open, signals are delivered to it instead of reaping, so that
// the owner stops its own resources.
type Subscription struct {
	quit chan os.Signal
}

func Subscribe() *Subscription {
	watchOnce.Do(watch)

	s := &Subscription{quit: make(chan os.Signal, 1)}
	handlers.mu.Lock()
	handlers.chans[s.quit] = struct{}{}
	handlers.mu.Unlock()
	return s
}

// Wait returns ErrTerminated once a signal has arrived since Subscribe, or nil
// when ctx is done.
func (s *Subscription) Wait(ctx context.Context) error {
	select {
	case <-s.quit:
		return ErrTerminated
	case <-ctx.Done():
		return nil
	}
}

// Close hands signals back to the reaper. It is safe to call more than once.
func (s *Subscription) Close() {
	handlers.mu.Lock()
	defer handlers.mu.Unlock()
	delete(handlers.chans, s.quit)
}

// ReapTimeout bounds how long the signal path waits for registered reapers.
const ReapTimeout = 30 * time.Second

type registry struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(context.Context)
}

var (
	global    = &registry{fns: map[uint64]func(context.Context){}}
	watchOnce sync.Once

	handlers = struct {
		mu    sync.Mutex
		chans map[chan os.Signal]struct{}
	}{chans: map[chan os.Signal]struct{}{}}
)

// deliver passes sig to every open subscription, reporting whether there was one.
func deliver(sig os.Signal) bool {
	handlers.mu.Lock()
	defer handlers.mu.Unlock()
	for ch := range handlers.chans {
		select {
		case ch <- sig:
		default:
		}
	}
	return len(handlers.chans) > 0
}

// Register adds fn to the set of funcs run by Reap. The first registration also
// starts watching for interrupt and terminate signals: on either, unless a
// Handle call takes it, everything registered is reaped and the signal is
// raised again so the process still ends.
// The returned func removes fn, it is safe to call more than once.
func Register(fn func(ctx context.Context)) (unregister func()) {
	watchOnce.Do(watch)

	global.mu.Lock()
	defer global.mu.Unlock()
	global.next++
	id := global.next
	global.fns[id] = fn

	return func() {
		global.mu.Lock()
		defer global.mu.Unlock()
		delete(global.fns, id)
	}
}

// Registered reports how many funcs are waiting to be reaped.
func Registered() int {
	global.mu.Lock()
	defer global.mu.Unlock()
	return len(global.fns)
}

// Reap runs every registered func concurrently and forgets them. A panicking
// func is recovered and reported, it never stops the others.
func Reap(ctx context.Context) {
	global.mu.Lock()
	fns := global.fns
	global.fns = map[uint64]func(context.Context){}
	global.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	o11y.Log(ctx, "termination: reaping", o11y.Field("count", len(fns)))

	var g errgroup.Group
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					Report(ctx, fmt.Errorf("reaper panic: %v", r))
				}
			}()
			fn(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

// Report writes a problem found during implicit cleanup to stderr and the o11y
// provider in ctx. Implicit cleanup has no caller to return errors to.
func Report(ctx context.Context, err error) {
	o11y.LogError(ctx, "termination: warning", o11y.Warn(err))
	_, _ = fmt.Fprintf(os.Stderr, "WARNING: ephemeral: %v\n"+
		"server processes and files may have been leaked, stop resources explicitly\n", err)
}

// watch owns the one signal subscription of the process. A signal nobody is
// handling reaps everything registered and is raised again so the process
// still ends.
func watch() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		var sig os.Signal
		for sig = range quit {
			if !deliver(sig) {
				break
			}
		}
		signal.Stop(quit)

		ctx, cancel := context.WithTimeout(context.Background(), ReapTimeout)
		Reap(ctx)
		cancel()

		p, err := os.FindProcess(os.Getpid())
		if err == nil {
			err = p.Signal(sig)
		}
		if err != nil {
			os.Exit(1)
		}
	}()
}
