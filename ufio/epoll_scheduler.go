//go:build linux
// +build linux

// File: ufio/epoll_scheduler.go
// Author: momentics <momentics@gmail.com>
//
// Edge-triggered epoll scheduler: one per IO thread. It arms one-shot
// interest for handles whose fibers would block, waits for readiness or the
// earliest deadline, and resumes the fibers concerned.

package ufio

import (
	"container/heap"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/control"
	"github.com/vmamidi/UserFiber/core/concurrency"
	"github.com/vmamidi/UserFiber/internal/logging"
	"github.com/vmamidi/UserFiber/pool"
	"github.com/vmamidi/UserFiber/reactor"
)

// interest is the kind of readiness a handle waits for.
type interest uint8

const (
	interestNone interest = iota
	interestConnect
	interestAccept
	interestRead
	interestWrite
)

func (i interest) events() reactor.Events {
	switch i {
	case interestConnect, interestWrite:
		return reactor.EventWrite
	case interestAccept, interestRead:
		return reactor.EventRead
	}
	return 0
}

func (i interest) String() string {
	switch i {
	case interestConnect:
		return "connect"
	case interestAccept:
		return "accept"
	case interestRead:
		return "read"
	case interestWrite:
		return "write"
	}
	return "none"
}

// outcome is how an armed interest ended.
type outcome uint8

const (
	outcomePending outcome = iota
	outcomeReady
	outcomeTimeout
	outcomeClosed
)

// publishInterval is the minimum spacing of metric publications, in µs.
const publishInterval = int64(time.Second / time.Microsecond)

// Stats are the scheduler counters. Safe to read from any goroutine.
type Stats struct {
	Registered  int64
	Sleeping    int64
	Arms        uint64
	Wakeups     uint64
	Timeouts    uint64
	Closes      uint64
	ArmFailures uint64
	Iterations  uint64
}

type schedStats struct {
	registered  atomic.Int64
	sleeping    atomic.Int64
	arms        atomic.Uint64
	wakeups     atomic.Uint64
	timeouts    atomic.Uint64
	closes      atomic.Uint64
	armFailures atomic.Uint64
	iterations  atomic.Uint64
}

// EpollScheduler is the Linux IOScheduler. All methods except Wake, Stats and
// ThreadID must run on the scheduler's IO thread.
type EpollScheduler struct {
	rt      *concurrency.Runtime
	tid     api.ThreadID
	poller  *reactor.Epoll
	handles map[int]*Handle
	maxFds  int
	events  []reactor.Event

	sleep    sleepList
	earliest int64
	seq      uint64
	entries  *pool.Pool[sleepEntry]

	clock clock.Clock
	base  time.Time

	conns     *ConnPool
	stats     schedStats
	metrics   *control.MetricsRegistry
	probes    *control.DebugProbes
	published int64

	closing bool
	log     zerolog.Logger
}

var (
	_ IOScheduler        = (*EpollScheduler)(nil)
	_ concurrency.Poller = (*EpollScheduler)(nil)
)

// NewEpollScheduler creates a scheduler for rt and installs it as rt's poller.
func NewEpollScheduler(rt *concurrency.Runtime, opts ...Option) (*EpollScheduler, error) {
	return newEpollScheduler(rt, resolveOptions(opts))
}

func newEpollScheduler(rt *concurrency.Runtime, o Options) (*EpollScheduler, error) {
	ep, err := reactor.NewEpoll(o.MaxEvents)
	if err != nil {
		return nil, err
	}
	s := &EpollScheduler{
		rt:       rt,
		tid:      rt.ThreadID(),
		poller:   ep,
		handles:  make(map[int]*Handle),
		maxFds:   o.MaxFds,
		events:   make([]reactor.Event, o.MaxEvents),
		earliest: noWake,
		clock:    o.Clock,
		metrics:  o.Metrics,
		probes:   o.Probes,
		log:      logging.Component("ufio").With().Int("thread", int(rt.ThreadID())).Logger(),
	}
	s.base = s.clock.Now()
	s.entries = pool.NewPool[sleepEntry](nil)
	s.entries.SetMaxPoolSize(o.SleepPoolSize)
	s.entries.PreAlloc()
	s.conns = newConnPool(s, o.ConnPoolMaxIdle)
	if s.probes != nil {
		s.probes.RegisterProbe(s.metricPrefix(), func() any { return s.Stats() })
	}
	rt.SetPoller(s)
	return s, nil
}

func (s *EpollScheduler) ThreadID() api.ThreadID    { return s.tid }
func (s *EpollScheduler) Runtime() api.FiberRuntime { return s.rt }
func (s *EpollScheduler) ConnPool() *ConnPool       { return s.conns }

// Now returns microseconds since the scheduler was created.
func (s *EpollScheduler) Now() int64 {
	return s.clock.Since(s.base).Microseconds()
}

// Len returns the number of registered handles.
func (s *EpollScheduler) Len() int { return len(s.handles) }

// Stats returns a copy of the counters.
func (s *EpollScheduler) Stats() Stats {
	return Stats{
		Registered:  s.stats.registered.Load(),
		Sleeping:    s.stats.sleeping.Load(),
		Arms:        s.stats.arms.Load(),
		Wakeups:     s.stats.wakeups.Load(),
		Timeouts:    s.stats.timeouts.Load(),
		Closes:      s.stats.closes.Load(),
		ArmFailures: s.stats.armFailures.Load(),
		Iterations:  s.stats.iterations.Load(),
	}
}

func (s *EpollScheduler) SetupForConnect(h *Handle, to api.Timeout) error {
	return s.armAndWait(h, interestConnect, to)
}

func (s *EpollScheduler) SetupForAccept(h *Handle, to api.Timeout) error {
	return s.armAndWait(h, interestAccept, to)
}

func (s *EpollScheduler) SetupForRead(h *Handle, to api.Timeout) error {
	return s.armAndWait(h, interestRead, to)
}

func (s *EpollScheduler) SetupForWrite(h *Handle, to api.Timeout) error {
	return s.armAndWait(h, interestWrite, to)
}

// armAndWait arms kind for h and suspends h's fiber until the interest ends.
// A zero timeout never waits.
func (s *EpollScheduler) armAndWait(h *Handle, kind interest, to api.Timeout) error {
	if h.fiber == nil {
		return api.ErrNoScheduler
	}
	if to == 0 {
		if h.armed != interestNone {
			return api.ErrBusy
		}
		return api.ErrTimeout
	}
	if err := s.arm(h, kind, to, h.fiber); err != nil {
		return err
	}
	return s.wait(h)
}

// arm registers h if needed and arms one-shot interest of kind, with a
// deadline when to is finite. waiter is resumed when the interest ends.
func (s *EpollScheduler) arm(h *Handle, kind interest, to api.Timeout, waiter api.Fiber) error {
	if s.closing {
		return api.ErrClosed
	}
	if h.fd < 0 || h.closed {
		return api.ErrBadFd
	}
	if h.armed != interestNone {
		return api.ErrBusy
	}
	if err := s.register(h); err != nil {
		return err
	}

	var err error
	if h.markedActive {
		err = s.poller.Modify(h.fd, kind.events())
	} else {
		err = s.poller.Add(h.fd, kind.events())
		if err == nil {
			h.markedActive = true
		}
	}
	if err != nil {
		s.stats.armFailures.Add(1)
		s.log.Warn().Err(err).Int("fd", h.fd).Stringer("kind", kind).Msg("arm failed")
		return api.NewOpError("epoll_ctl", h.fd, err)
	}

	h.gen++
	h.armed = kind
	h.result = outcomePending
	h.waiter = waiter
	if !to.Infinite() {
		s.addSleep(h, to)
	}
	s.stats.arms.Add(1)
	s.log.Debug().Int("fd", h.fd).Stringer("kind", kind).Int64("timeout_us", int64(to)).Msg("armed")
	return nil
}

func (s *EpollScheduler) wait(h *Handle) error {
	h.waiter.Suspend()
	switch h.result {
	case outcomeReady:
		return nil
	case outcomeTimeout:
		return api.ErrTimeout
	case outcomeClosed:
		return api.ErrClosed
	}
	// resumed by someone else while still armed
	s.disarm(h)
	return api.ErrClosed
}

// register adds h to the fd registry. A different handle found under the
// same fd is stale (its fd was closed behind the scheduler's back and
// reused) and is dropped.
func (s *EpollScheduler) register(h *Handle) error {
	if cur, ok := s.handles[h.fd]; ok {
		if cur == h {
			return nil
		}
		s.log.Debug().Int("fd", h.fd).Msg("replacing stale handle")
		s.drop(cur, outcomeClosed)
		cur.markedActive = false
	} else if len(s.handles) >= s.maxFds {
		return api.ErrCapacity
	}
	s.handles[h.fd] = h
	h.sched = s
	s.stats.registered.Store(int64(len(s.handles)))
	return nil
}

// complete ends h's armed interest with res and resumes its waiter.
func (s *EpollScheduler) complete(h *Handle, res outcome) {
	s.removeSleep(h)
	h.armed = interestNone
	h.result = res
	if w := h.waiter; w != nil {
		h.waiter = nil
		s.rt.Resume(w)
	}
}

// disarm drops armed interest without resuming anyone. The one-shot epoll
// registration may still fire later; events for idle handles are ignored.
func (s *EpollScheduler) disarm(h *Handle) {
	s.removeSleep(h)
	h.armed = interestNone
	h.waiter = nil
}

// drop removes h from the registry, resuming any waiter with res.
func (s *EpollScheduler) drop(h *Handle, res outcome) {
	delete(s.handles, h.fd)
	s.stats.registered.Store(int64(len(s.handles)))
	if h.armed != interestNone {
		s.complete(h, res)
	} else {
		s.removeSleep(h)
	}
}

// CloseConnection deregisters h from epoll and the registry. A fiber waiting
// on h resumes with api.ErrClosed.
func (s *EpollScheduler) CloseConnection(h *Handle) bool {
	cur, ok := s.handles[h.fd]
	if !ok || cur != h {
		return false
	}
	if h.markedActive {
		_ = s.poller.Remove(h.fd)
		h.markedActive = false
	}
	s.drop(h, outcomeClosed)
	s.stats.closes.Add(1)
	s.log.Debug().Int("fd", h.fd).Msg("connection closed")
	return true
}

func (s *EpollScheduler) addSleep(h *Handle, to api.Timeout) {
	e := s.entries.Get()
	e.wake = s.Now() + int64(to)
	e.seq = s.seq
	e.fd = h.fd
	e.gen = h.gen
	e.fiber = nil
	s.seq++
	heap.Push(&s.sleep, e)
	h.sleep = e
	if e.wake < s.earliest {
		s.earliest = e.wake
	}
	s.stats.sleeping.Store(int64(len(s.sleep)))
}

func (s *EpollScheduler) removeSleep(h *Handle) {
	e := h.sleep
	if e == nil {
		return
	}
	h.sleep = nil
	if e.index >= 0 && e.index < len(s.sleep) && s.sleep[e.index] == e {
		heap.Remove(&s.sleep, e.index)
	}
	s.entries.Put(e)
	s.earliest = s.sleep.head()
	s.stats.sleeping.Store(int64(len(s.sleep)))
}

// Sleep suspends f for to microseconds. A zero or infinite timeout yields.
func (s *EpollScheduler) Sleep(f api.Fiber, to api.Timeout) {
	if to <= 0 || s.closing {
		f.Yield()
		return
	}
	e := s.entries.Get()
	e.wake = s.Now() + int64(to)
	e.seq = s.seq
	e.fd = -1
	e.gen = 0
	e.fiber = f
	s.seq++
	heap.Push(&s.sleep, e)
	if e.wake < s.earliest {
		s.earliest = e.wake
	}
	s.stats.sleeping.Store(int64(len(s.sleep)))
	f.Suspend()
}

// WaitForEvents waits for readiness no longer than to or the earliest
// deadline, resumes the fibers of ready handles, then expires due deadlines.
func (s *EpollScheduler) WaitForEvents(to api.Timeout) {
	s.stats.iterations.Add(1)
	budget := waitBudget(to, s.earliest, s.Now())

	n, err := s.poller.Wait(s.events, budget.Millis())
	if err != nil {
		s.log.Error().Err(err).Msg("wait failed")
	}
	for i := 0; i < n; i++ {
		ev := s.events[i]
		h, ok := s.handles[ev.Fd]
		if !ok {
			continue
		}
		h.lastEvents = ev.Events
		if h.armed == interestNone {
			continue
		}
		s.stats.wakeups.Add(1)
		s.log.Debug().Int("fd", ev.Fd).Stringer("kind", h.armed).Uint8("events", uint8(ev.Events)).Msg("ready")
		s.complete(h, outcomeReady)
	}

	now := s.Now()
	s.expire(now)
	s.earliest = s.sleep.head()
	s.stats.sleeping.Store(int64(len(s.sleep)))

	if s.metrics != nil && now-s.published >= publishInterval {
		s.published = now
		s.publish()
	}
}

// expire fires every deadline at or before now.
func (s *EpollScheduler) expire(now int64) {
	for len(s.sleep) > 0 && s.sleep[0].wake <= now {
		e := heap.Pop(&s.sleep).(*sleepEntry)
		if f := e.fiber; f != nil {
			s.entries.Put(e)
			s.rt.Resume(f)
			continue
		}
		h, ok := s.handles[e.fd]
		if !ok || h.sleep != e || h.gen != e.gen {
			// handle closed or re-armed since; nothing to do
			s.entries.Put(e)
			continue
		}
		h.sleep = nil
		s.entries.Put(e)
		s.stats.timeouts.Add(1)
		s.log.Debug().Int("fd", h.fd).Stringer("kind", h.armed).Msg("timed out")
		s.complete(h, outcomeTimeout)
	}
}

// RPoll reports which handles are readable. When none are and to is not
// zero, f waits until one of them becomes readable or to passes, and the
// handles are probed again.
func (s *EpollScheduler) RPoll(f api.Fiber, handles []*Handle, to api.Timeout) ([]*Handle, error) {
	ready, err := probeReadable(handles)
	if err != nil || len(ready) > 0 || to == 0 || len(handles) == 0 {
		return ready, err
	}

	armed := make([]*Handle, 0, len(handles))
	for _, h := range handles {
		if err := s.arm(h, interestRead, api.NoTimeout, f); err != nil {
			s.log.Debug().Err(err).Int("fd", h.fd).Msg("rpoll skip")
			continue
		}
		armed = append(armed, h)
	}
	if len(armed) == 0 {
		return nil, api.ErrBusy
	}
	if !to.Infinite() {
		s.addSleep(armed[0], to)
	}

	f.Suspend()

	for _, h := range armed {
		if h.armed != interestNone {
			s.disarm(h)
		}
	}
	return probeReadable(handles)
}

func probeReadable(handles []*Handle) ([]*Handle, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	fds := make([]int, len(handles))
	for i, h := range handles {
		fds[i] = h.fd
	}
	ok := make([]bool, len(handles))
	n, err := reactor.ProbeReadable(fds, ok)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]*Handle, 0, n)
	for i, h := range handles {
		if ok[i] {
			out = append(out, h)
		}
	}
	return out, nil
}

// Poll implements concurrency.Poller.
func (s *EpollScheduler) Poll(to api.Timeout) { s.WaitForEvents(to) }

// Wake interrupts a blocked WaitForEvents from any thread.
func (s *EpollScheduler) Wake() { _ = s.poller.Wake() }

// Shutdown closes every registered handle and ends every sleep so that
// suspended fibers resume. Further arming fails with api.ErrClosed.
func (s *EpollScheduler) Shutdown() {
	s.closing = true
	s.conns.Close()
	closed := 0
	for _, h := range s.handles {
		if h.Close() {
			closed++
		}
	}
	for len(s.sleep) > 0 {
		e := heap.Pop(&s.sleep).(*sleepEntry)
		if e.fiber != nil {
			s.rt.Resume(e.fiber)
		}
		s.entries.Put(e)
	}
	s.earliest = noWake
	s.stats.sleeping.Store(0)
	s.log.Debug().Int("closed", closed).Msg("scheduler shut down")
}

// Close releases the epoll instance. Call after the runtime stopped.
func (s *EpollScheduler) Close() error {
	s.closing = true
	if s.probes != nil {
		s.probes.UnregisterProbe(s.metricPrefix())
	}
	if s.metrics != nil {
		s.publish()
	}
	return s.poller.Close()
}

func (s *EpollScheduler) metricPrefix() string {
	return fmt.Sprintf("ufio.thread.%d", s.tid)
}

func (s *EpollScheduler) publish() {
	st := s.Stats()
	s.metrics.SetAll(s.metricPrefix(), map[string]any{
		"registered":   st.Registered,
		"sleeping":     st.Sleeping,
		"arms":         st.Arms,
		"wakeups":      st.Wakeups,
		"timeouts":     st.Timeouts,
		"closes":       st.Closes,
		"arm_failures": st.ArmFailures,
		"iterations":   st.Iterations,
	})
}
