//go:build linux
// +build linux

// File: ufio/iothread.go
// Author: momentics <momentics@gmail.com>
//
// IO thread bootstrap: a locked OS thread running a fiber runtime whose
// poller is an EpollScheduler registered for that thread.

package ufio

import (
	"fmt"
	"runtime"

	"go.uber.org/multierr"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/core/concurrency"
	"github.com/vmamidi/UserFiber/internal/logging"
)

// IOThread is a running IO thread.
type IOThread struct {
	rt    *concurrency.Runtime
	sched *EpollScheduler
	done  chan struct{}
	err   error
}

// CreateIOThread starts an IO thread, spawns one fiber per entry of initial
// on it and returns once the thread's scheduler is registered.
func CreateIOThread(initial []func(api.Fiber), opts ...Option) (*IOThread, error) {
	o := resolveOptions(opts)
	t := &IOThread{done: make(chan struct{})}
	ready := make(chan error, 1)
	go t.run(initial, o, ready)
	if err := <-ready; err != nil {
		<-t.done
		return nil, err
	}
	return t, nil
}

func (t *IOThread) run(initial []func(api.Fiber), o Options, ready chan<- error) {
	defer close(t.done)
	log := logging.Component("ufio")

	if err := concurrency.PinCurrentThread(o.CPU); err != nil {
		log.Warn().Err(err).Int("cpu", o.CPU).Msg("running unpinned")
	}
	// a thread with a modified affinity mask is not handed back to the Go
	// scheduler; it exits with the goroutine
	if o.CPU < 0 {
		defer runtime.UnlockOSThread()
	}

	tid := concurrency.CurrentThreadID()
	rt := concurrency.NewRuntime(tid, o.InboxSize)
	sched, err := newEpollScheduler(rt, o)
	if err != nil {
		ready <- err
		return
	}
	if cur, ok := Register(tid, sched); !ok {
		_ = sched.Close()
		ready <- fmt.Errorf("thread %d already runs scheduler %p", tid, cur)
		return
	}
	t.rt, t.sched = rt, sched

	for _, fn := range initial {
		rt.Spawn(fn)
	}
	log.Debug().Int("thread", int(tid)).Int("fibers", len(initial)).Msg("io thread started")
	ready <- nil

	rt.Run()

	Unregister(tid, sched)
	t.err = multierr.Append(t.err, sched.Close())
	lineBuffers.ReleaseThread(tid)
	log.Debug().Int("thread", int(tid)).Msg("io thread stopped")
}

// Spawn starts fn on a new fiber of the thread. Safe from any goroutine.
func (t *IOThread) Spawn(fn func(api.Fiber)) error { return t.rt.SpawnRemote(fn) }

// Stop asks the thread to shut down. Registered handles are closed and the
// fibers waiting on them resume with api.ErrClosed.
func (t *IOThread) Stop() { t.rt.Stop() }

// Wait blocks until the thread has exited and returns its shutdown error.
func (t *IOThread) Wait() error {
	<-t.done
	return t.err
}

// Done is closed when the thread has exited.
func (t *IOThread) Done() <-chan struct{} { return t.done }

func (t *IOThread) Scheduler() *EpollScheduler    { return t.sched }
func (t *IOThread) Runtime() *concurrency.Runtime { return t.rt }
func (t *IOThread) ThreadID() api.ThreadID        { return t.rt.ThreadID() }
