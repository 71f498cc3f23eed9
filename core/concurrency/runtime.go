// File: core/concurrency/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cooperative fiber runtime. Each fiber is a goroutine that only runs while
// it holds its runtime's baton: the runtime hands the baton to one ready
// fiber and blocks until that fiber suspends, yields or returns. At most one
// fiber of a runtime executes at any instant, so state owned by the runtime
// thread needs no locking.

package concurrency

import (
	"runtime"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/internal/logging"
)

// DefaultInboxSize is the capacity of a runtime's remote spawn inbox.
const DefaultInboxSize = 4096

// Poller is the I/O scheduler a runtime calls when it runs out of ready
// fibers. Poll and Shutdown run on the runtime thread; Wake is thread safe.
type Poller interface {
	// Poll waits at most timeout for I/O or timers and resumes fibers.
	Poll(timeout api.Timeout)
	// Wake interrupts a blocked Poll.
	Wake()
	// Shutdown releases everything still armed so waiting fibers resume.
	Shutdown()
}

type fiberState uint8

const (
	stateReady fiberState = iota
	stateRunning
	stateSuspended
	stateDone
)

var fiberIDs atomic.Uint64

// Fiber is a goroutine scheduled cooperatively by a Runtime.
type Fiber struct {
	id    uint64
	rt    *Runtime
	fn    func(api.Fiber)
	wake  chan struct{}
	state fiberState
}

var _ api.Fiber = (*Fiber)(nil)

func (f *Fiber) ID() uint64                { return f.id }
func (f *Fiber) Runtime() api.FiberRuntime { return f.rt }

// Suspend hands the baton back to the runtime until Resume is called.
func (f *Fiber) Suspend() {
	f.state = stateSuspended
	f.rt.yield <- struct{}{}
	<-f.wake
}

// Yield requeues the fiber and lets every other ready fiber run first.
func (f *Fiber) Yield() {
	f.state = stateReady
	f.rt.ready.Add(f)
	f.rt.yield <- struct{}{}
	<-f.wake
}

func (f *Fiber) main() {
	<-f.wake
	defer func() {
		if r := recover(); r != nil {
			f.rt.log.Error().Interface("panic", r).Uint64("fiber", f.id).Msg("fiber panicked")
		}
		f.state = stateDone
		f.rt.yield <- struct{}{}
	}()
	f.fn(f)
}

// Runtime multiplexes fibers onto the OS thread that calls Run.
type Runtime struct {
	tid     api.ThreadID
	ready   *queue.Queue // *Fiber
	inbox   *LockFreeQueue[func(api.Fiber)]
	kick    chan struct{}
	yield   chan struct{}
	poller  Poller
	live    int
	stopped atomic.Bool
	running atomic.Bool
	senders atomic.Int32 // SpawnRemote calls past the stopped check
	log     zerolog.Logger
}

var _ api.FiberRuntime = (*Runtime)(nil)

// NewRuntime creates a runtime for the OS thread tid. inboxSize <= 0 uses
// DefaultInboxSize.
func NewRuntime(tid api.ThreadID, inboxSize int) *Runtime {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Runtime{
		tid:   tid,
		ready: queue.New(),
		inbox: NewLockFreeQueue[func(api.Fiber)](inboxSize),
		kick:  make(chan struct{}, 1),
		yield: make(chan struct{}),
		log:   logging.Component("runtime").With().Int("thread", int(tid)).Logger(),
	}
}

// SetPoller installs the I/O scheduler. Must be called before Run.
func (rt *Runtime) SetPoller(p Poller) { rt.poller = p }

func (rt *Runtime) ThreadID() api.ThreadID { return rt.tid }

// Live returns the number of fibers that have not returned yet.
// Runtime-thread only.
func (rt *Runtime) Live() int { return rt.live }

// Spawn creates a fiber and queues it. Runtime-thread only (including
// before Run starts, from the goroutine that will call Run).
func (rt *Runtime) Spawn(fn func(api.Fiber)) api.Fiber {
	f := &Fiber{
		id:   fiberIDs.Add(1),
		rt:   rt,
		fn:   fn,
		wake: make(chan struct{}),
	}
	rt.live++
	go f.main()
	rt.ready.Add(f)
	return f
}

// SpawnRemote queues fn for creation on the runtime thread. Once it
// succeeds fn is guaranteed to run, during shutdown if need be; after Stop
// it fails with ErrRuntimeStopped.
func (rt *Runtime) SpawnRemote(fn func(api.Fiber)) error {
	rt.senders.Add(1)
	defer rt.senders.Add(-1)
	if rt.stopped.Load() {
		return ErrRuntimeStopped
	}
	if !rt.inbox.Enqueue(fn) {
		return api.ErrInboxFull
	}
	rt.wake()
	return nil
}

// Resume marks a suspended fiber runnable. Runtime-thread only.
func (rt *Runtime) Resume(af api.Fiber) {
	f, ok := af.(*Fiber)
	if !ok || f.rt != rt || f.state != stateSuspended {
		return
	}
	f.state = stateReady
	rt.ready.Add(f)
}

// Stop asks Run to return. Safe from any thread.
func (rt *Runtime) Stop() {
	if rt.stopped.CompareAndSwap(false, true) {
		rt.wake()
	}
}

// Stopped reports whether Stop was called.
func (rt *Runtime) Stopped() bool { return rt.stopped.Load() }

// Run drives fibers until Stop. The caller should have locked its goroutine
// to the OS thread identified by ThreadID. On the way out it shuts the
// poller down, then runs the ready fibers and every remote spawn accepted
// before Stop.
func (rt *Runtime) Run() {
	if !rt.running.CompareAndSwap(false, true) {
		return
	}
	defer rt.running.Store(false)

	for !rt.stopped.Load() {
		rt.drainInbox()
		rt.runBatch()
		if rt.stopped.Load() {
			break
		}
		rt.idle()
	}

	if rt.poller != nil {
		rt.poller.Shutdown()
	}
	// stopped is set, so only senders already past the check can still
	// enqueue; wait them out and give what they queued a chance to run.
	for rt.senders.Load() > 0 {
		runtime.Gosched()
	}
	rt.drainInbox()
	for rt.ready.Length() > 0 {
		rt.switchTo(rt.ready.Remove().(*Fiber))
	}
	if rt.live > 0 {
		rt.log.Debug().Int("live", rt.live).Msg("runtime stopped with suspended fibers")
	}
}

func (rt *Runtime) drainInbox() {
	for {
		fn, ok := rt.inbox.Dequeue()
		if !ok {
			return
		}
		rt.Spawn(fn)
	}
}

// runBatch runs the fibers that are ready now; fibers readied during the
// batch wait for the next one so the poller is never starved.
func (rt *Runtime) runBatch() {
	for n := rt.ready.Length(); n > 0; n-- {
		rt.switchTo(rt.ready.Remove().(*Fiber))
	}
}

func (rt *Runtime) switchTo(f *Fiber) {
	f.state = stateRunning
	f.wake <- struct{}{}
	<-rt.yield
	if f.state == stateDone {
		rt.live--
	}
}

func (rt *Runtime) idle() {
	timeout := api.NoTimeout
	if rt.ready.Length() > 0 || rt.inbox.Len() > 0 {
		timeout = 0
	}
	if rt.poller != nil {
		rt.poller.Poll(timeout)
		return
	}
	if timeout == 0 {
		return
	}
	<-rt.kick
}

func (rt *Runtime) wake() {
	if p := rt.poller; p != nil {
		p.Wake()
		return
	}
	select {
	case rt.kick <- struct{}{}:
	default:
	}
}
