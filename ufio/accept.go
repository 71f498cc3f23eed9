//go:build linux
// +build linux

// File: ufio/accept.go
// Author: momentics <momentics@gmail.com>
//
// Accept loop with placement of accepted connections onto IO threads.

package ufio

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/internal/logging"
)

// DefaultAcceptBacklog is the listen backlog used when none is given.
const DefaultAcceptBacklog = 16000

// acceptBackoff is how long the acceptor sleeps when the process is out of
// descriptors or memory.
var acceptBackoff = api.TimeoutOf(10 * time.Millisecond)

// AcceptChooser picks the IO thread that serves a newly accepted connection.
// A nil scheduler selects the thread registered for the returned id.
type AcceptChooser interface {
	PickThread(listenFd int) (IOScheduler, api.ThreadID)
}

// AcceptHandler serves one accepted connection on its own fiber. The handle
// is closed when the handler returns.
type AcceptHandler func(h *Handle, args any)

// FixedChooser places every connection on one scheduler.
type FixedChooser struct {
	Sched IOScheduler
}

func (c FixedChooser) PickThread(int) (IOScheduler, api.ThreadID) {
	return c.Sched, c.Sched.ThreadID()
}

// RoundRobinChooser cycles through a fixed set of schedulers. Safe for
// concurrent use by several acceptors.
type RoundRobinChooser struct {
	scheds []IOScheduler
	next   atomic.Uint64
}

// NewRoundRobinChooser returns a chooser over scheds, which must not be empty.
func NewRoundRobinChooser(scheds ...IOScheduler) *RoundRobinChooser {
	return &RoundRobinChooser{scheds: append([]IOScheduler(nil), scheds...)}
}

func (c *RoundRobinChooser) PickThread(int) (IOScheduler, api.ThreadID) {
	s := c.scheds[(c.next.Add(1)-1)%uint64(len(c.scheds))]
	return s, s.ThreadID()
}

// Accept runs the accept loop on a listening handle. Every accepted
// connection is served by handler on a new fiber of the IO thread chooser
// picks (h's own thread when chooser is nil or picks nothing). Accept
// returns api.ErrClosed once h is closed, or an error if the listening
// socket fails for good.
func (h *Handle) Accept(chooser AcceptChooser, handler AcceptHandler, args any) error {
	log := logging.Component("ufio").With().Int("listen_fd", h.fd).Logger()
	s, err := h.scheduler()
	if err != nil {
		return err
	}
	log.Debug().Msg("accept loop started")
	for {
		if h.closed {
			return api.ErrClosed
		}
		nfd, sa, err := unix.Accept4(h.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			h.place(s, chooser, handler, args, nfd, sa)
		case unix.EINTR, unix.ECONNABORTED:
		case unix.EAGAIN:
			if werr := s.SetupForAccept(h, api.NoTimeout); werr != nil {
				if errors.Is(werr, api.ErrClosed) || errors.Is(werr, api.ErrBadFd) {
					return api.ErrClosed
				}
				log.Error().Err(werr).Msg("cannot wait for connections")
				return werr
			}
		case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
			log.Warn().Err(err).Msg("accept out of resources; backing off")
			s.Sleep(h.fiber, acceptBackoff)
		default:
			if h.closed {
				return api.ErrClosed
			}
			h.setErr(err)
			log.Error().Err(err).Msg("accept failed")
			return api.NewOpError("accept", h.fd, err)
		}
	}
}

// place starts handler for the accepted descriptor nfd on the chosen thread.
func (h *Handle) place(local IOScheduler, chooser AcceptChooser, handler AcceptHandler, args any, nfd int, sa unix.Sockaddr) {
	target := local
	if chooser != nil {
		s, tid := chooser.PickThread(h.fd)
		if s == nil {
			s = SchedulerFor(tid)
		}
		if s != nil {
			target = s
		}
	}
	ip, port := sockaddrIP(sa)
	start := func(f api.Fiber) {
		c := NewHandle(f, nfd)
		c.remoteIP, c.remotePort = ip, port
		defer c.Close()
		if !c.IsSetup(true) {
			return
		}
		handler(c, args)
	}

	rt := target.Runtime()
	if rt.ThreadID() == local.ThreadID() {
		rt.Spawn(start)
		return
	}
	if err := rt.SpawnRemote(start); err != nil {
		log := logging.Component("ufio")
		log.Warn().Err(err).
			Int("fd", nfd).
			Int("thread", int(rt.ThreadID())).
			Msg("dropping accepted connection")
		_ = unix.Close(nfd)
	}
}

// SetupConnectionToAccept creates a TCP socket listening on addr:port
// (IPv4; empty addr listens on all interfaces) and returns its descriptor.
// backlog <= 0 uses DefaultAcceptBacklog.
func SetupConnectionToAccept(addr string, port int, backlog int, nonBlocking bool) (int, error) {
	if backlog <= 0 {
		backlog = DefaultAcceptBacklog
	}
	sa := &unix.SockaddrInet4{Port: port}
	if addr != "" {
		ip := net.ParseIP(addr)
		if ip == nil {
			return -1, api.ErrInvalidArgument
		}
		ip4 := ip.To4()
		if ip4 == nil {
			return -1, api.ErrNotSupported
		}
		copy(sa.Addr[:], ip4)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, api.NewOpError("socket", -1, err)
	}
	fail := func(op string, err error) (int, error) {
		_ = unix.Close(fd)
		return -1, api.NewOpError(op, fd, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}
	if nonBlocking {
		if err := unix.SetNonblock(fd, true); err != nil {
			return fail("fcntl", err)
		}
	}
	return fd, nil
}

// LocalPort returns the bound port of fd.
func LocalPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, api.NewOpError("getsockname", fd, err)
	}
	_, port := sockaddrIP(sa)
	return port, nil
}
