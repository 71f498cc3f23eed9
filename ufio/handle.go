//go:build linux
// +build linux

// File: ufio/handle.go
// Author: momentics <momentics@gmail.com>
//
// Socket handle: an owned descriptor bound to the fiber that drives it.

package ufio

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/reactor"
)

var sockBuf struct {
	recv atomic.Int64
	send atomic.Int64
}

// SetSockBufSizes sets the SO_RCVBUF and SO_SNDBUF values applied by
// IsSetup. Zero or negative leaves the kernel default.
func SetSockBufSizes(recv, send int) {
	sockBuf.recv.Store(int64(recv))
	sockBuf.send.Store(int64(send))
}

// SockBufSizes returns the socket buffer sizes applied by IsSetup.
func SockBufSizes() (recv, send int) {
	return int(sockBuf.recv.Load()), int(sockBuf.send.Load())
}

// Handle owns one descriptor and performs blocking-style I/O on it from its
// fiber. At most one operation may be outstanding at a time.
type Handle struct {
	fd    int
	errno unix.Errno
	fiber api.Fiber
	sched IOScheduler

	// scheduler-owned state
	armed        interest
	result       outcome
	waiter       api.Fiber
	sleep        *sleepEntry
	gen          uint64
	lastEvents   reactor.Events
	markedActive bool

	active bool
	closed bool

	line    *lineBuffer
	lineTid api.ThreadID

	remoteIP   string
	remotePort int
}

// NewHandle wraps fd for fiber f. fd may be -1 for a handle that Connect
// creates its socket for.
func NewHandle(f api.Fiber, fd int) *Handle {
	if fd < 0 {
		fd = -1
	}
	return &Handle{fd: fd, fiber: f}
}

func (h *Handle) Fd() int                    { return h.fd }
func (h *Handle) Errno() unix.Errno          { return h.errno }
func (h *Handle) Fiber() api.Fiber           { return h.fiber }
func (h *Handle) RemoteIP() string           { return h.remoteIP }
func (h *Handle) RemotePort() int            { return h.remotePort }
func (h *Handle) LastEvents() reactor.Events { return h.lastEvents }
func (h *Handle) Closed() bool               { return h.closed }

// Scheduler returns the scheduler driving h, resolving it from the fiber's
// IO thread when h has not been registered yet. Nil if there is none.
func (h *Handle) Scheduler() IOScheduler {
	s, err := h.scheduler()
	if err != nil {
		return h.sched
	}
	return s
}

// SetFiber hands h to another fiber. A handle may only move to a fiber of
// another IO thread while nothing is armed.
func (h *Handle) SetFiber(f api.Fiber) { h.fiber = f }

// SetFd replaces the descriptor of a handle that holds none and sets it up.
func (h *Handle) SetFd(fd int, nonBlocking bool) bool {
	if h.fd >= 0 && !h.closed {
		return false
	}
	h.fd = fd
	h.closed = false
	h.active = false
	h.errno = 0
	return h.IsSetup(nonBlocking)
}

// IsSetup prepares the descriptor for use: non-blocking mode when asked,
// plus the configured socket buffer sizes. It is idempotent and reports
// false for an invalid descriptor.
func (h *Handle) IsSetup(nonBlocking bool) bool {
	if h.fd < 0 || h.closed {
		return false
	}
	if h.active {
		return true
	}
	if nonBlocking {
		if err := unix.SetNonblock(h.fd, true); err != nil {
			h.setErr(err)
			return false
		}
	}
	recv, send := SockBufSizes()
	// failures are expected for non-socket descriptors
	if recv > 0 {
		_ = unix.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, recv)
	}
	if send > 0 {
		_ = unix.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, send)
	}
	h.active = true
	return true
}

// Close deregisters and closes the descriptor. It reports whether this call
// closed it; later calls do nothing. A fiber blocked on h resumes with
// api.ErrClosed.
func (h *Handle) Close() bool {
	if h.closed || h.fd < 0 {
		return false
	}
	h.closed = true
	h.active = false
	if h.sched != nil {
		h.sched.CloseConnection(h)
	}
	h.releaseLine()
	if err := unix.Close(h.fd); err != nil {
		h.setErr(err)
	}
	h.fd = -1
	return true
}

func (h *Handle) setErr(err error) {
	var errno unix.Errno
	if errors.As(err, &errno) {
		h.errno = errno
	}
}

// scheduler resolves the scheduler of the IO thread running h's fiber.
func (h *Handle) scheduler() (IOScheduler, error) {
	if h.fiber == nil {
		return nil, api.ErrNoScheduler
	}
	tid := h.fiber.Runtime().ThreadID()
	if h.sched != nil && h.sched.ThreadID() == tid {
		return h.sched, nil
	}
	if h.sched != nil && h.markedActive {
		// still registered with the previous thread's epoll
		return nil, api.ErrBusy
	}
	s := SchedulerFor(tid)
	if s == nil {
		return nil, api.ErrNoScheduler
	}
	return s, nil
}

// deadline tracks the absolute end of one operation across wake-ups.
type deadline struct {
	timeout api.Timeout
	at      int64
	started bool
}

func newDeadline(to api.Timeout) *deadline { return &deadline{timeout: to} }

// remaining returns the time left, starting the clock on first use.
func (d *deadline) remaining(s IOScheduler) api.Timeout {
	if d.timeout.Infinite() || d.timeout == 0 {
		return d.timeout
	}
	now := s.Now()
	if !d.started {
		d.started = true
		d.at = now + int64(d.timeout)
	}
	left := d.at - now
	if left < 0 {
		left = 0
	}
	return api.Timeout(left)
}

func setup(s IOScheduler, kind interest, h *Handle, to api.Timeout) error {
	switch kind {
	case interestConnect:
		return s.SetupForConnect(h, to)
	case interestAccept:
		return s.SetupForAccept(h, to)
	case interestWrite:
		return s.SetupForWrite(h, to)
	default:
		return s.SetupForRead(h, to)
	}
}

// retry runs call until it stops reporting EAGAIN, waiting for kind
// readiness in between. EINTR is retried at once; a wake-up after which the
// call would still block is treated as spurious and waited out again.
func (h *Handle) retry(op string, kind interest, dl *deadline, call func() error) error {
	if h.fd < 0 || h.closed {
		h.errno = unix.EBADF
		return api.ErrBadFd
	}
	var s IOScheduler
	for {
		err := call()
		switch err {
		case nil:
			h.errno = 0
			return nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
		default:
			h.setErr(err)
			return api.NewOpError(op, h.fd, err)
		}

		if dl.timeout == 0 {
			h.errno = unix.ETIMEDOUT
			return api.ErrTimeout
		}
		if s == nil {
			var serr error
			if s, serr = h.scheduler(); serr != nil {
				return serr
			}
		}
		left := dl.remaining(s)
		if left == 0 {
			h.errno = unix.ETIMEDOUT
			return api.ErrTimeout
		}
		if err := setup(s, kind, h, left); err != nil {
			if errors.Is(err, api.ErrTimeout) {
				h.errno = unix.ETIMEDOUT
			}
			return err
		}
		if h.closed {
			return api.ErrClosed
		}
	}
}
