//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor with an eventfd for cross-thread wake-ups.

package reactor

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const baseFlags = unix.EPOLLET | unix.EPOLLONESHOT | unix.EPOLLRDHUP

// ErrClosed is returned by a reactor used after Close.
var ErrClosed = errors.New("reactor: closed")

// Epoll is an edge-triggered epoll instance.
type Epoll struct {
	epfd   int
	wakefd int
	raw    []unix.EpollEvent
	closed bool

	// guards wakefd against Wake racing Close from another thread
	wakeMu     sync.RWMutex
	wakeClosed bool
}

var _ EventReactor = (*Epoll)(nil)

// NewEpoll creates an epoll instance returning up to maxEvents per Wait.
func NewEpoll(maxEvents int) (*Epoll, error) {
	if maxEvents <= 0 {
		maxEvents = 256
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	return &Epoll{
		epfd:   epfd,
		wakefd: wakefd,
		raw:    make([]unix.EpollEvent, maxEvents),
	}, nil
}

// NewReactor constructs the platform reactor.
func NewReactor(maxEvents int) (EventReactor, error) {
	return NewEpoll(maxEvents)
}

// Add registers fd with one-shot edge-triggered interest.
func (r *Epoll) Add(fd int, ev Events) error {
	return r.ctl(unix.EPOLL_CTL_ADD, fd, ev)
}

// Modify re-arms fd.
func (r *Epoll) Modify(fd int, ev Events) error {
	return r.ctl(unix.EPOLL_CTL_MOD, fd, ev)
}

// Remove deregisters fd.
func (r *Epoll) Remove(fd int) error {
	if r.closed {
		return ErrClosed
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (r *Epoll) ctl(op int, fd int, ev Events) error {
	if r.closed {
		return ErrClosed
	}
	e := unix.EpollEvent{Events: eventsToEpoll(ev) | baseFlags, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, op, fd, &e)
}

// Wait polls for readiness. EINTR is reported as zero events.
func (r *Epoll) Wait(events []Event, timeoutMs int) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	limit := len(events)
	if limit > len(r.raw) {
		limit = len(r.raw)
	}
	if limit == 0 {
		return 0, nil
	}
	n, err := unix.EpollWait(r.epfd, r.raw[:limit], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	out := 0
	for i := 0; i < n; i++ {
		fd := int(r.raw[i].Fd)
		if fd == r.wakefd {
			r.drainWake()
			continue
		}
		events[out] = Event{Fd: fd, Events: epollToEvents(r.raw[i].Events)}
		out++
	}
	return out, nil
}

// Wake makes a concurrent or future Wait return. Safe from any thread.
func (r *Epoll) Wake() error {
	r.wakeMu.RLock()
	defer r.wakeMu.RUnlock()
	if r.wakeClosed {
		return ErrClosed
	}
	var one = [8]byte{1}
	_, err := unix.Write(r.wakefd, one[:])
	if err == unix.EAGAIN {
		// counter saturated: a wake-up is already pending
		return nil
	}
	return err
}

func (r *Epoll) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Close releases the epoll and eventfd descriptors.
func (r *Epoll) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.wakeMu.Lock()
	r.wakeClosed = true
	err1 := unix.Close(r.wakefd)
	r.wakeMu.Unlock()
	err2 := unix.Close(r.epfd)
	if err1 != nil {
		return err1
	}
	return err2
}

func eventsToEpoll(ev Events) uint32 {
	var out uint32
	if ev&EventRead != 0 {
		out |= unix.EPOLLIN
	}
	if ev&EventWrite != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func epollToEvents(e uint32) Events {
	var ev Events
	if e&unix.EPOLLIN != 0 {
		ev |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		ev |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		ev |= EventError
	}
	if e&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		ev |= EventHangup
	}
	return ev
}

// ProbeReadable reports, without blocking, which fds are readable or hung
// up. ready must be at least as long as fds.
func ProbeReadable(fds []int, ready []bool) (int, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	for {
		n, err := unix.Poll(pfds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return 0, nil
		}
		count := 0
		for i := range pfds {
			ready[i] = pfds[i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
			if ready[i] {
				count++
			}
		}
		return count, nil
	}
}
