//go:build linux
// +build linux

// File: ufio/connpool.go
// Author: momentics <momentics@gmail.com>
//
// Idle outbound connections kept per address by a scheduler.

package ufio

import (
	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
)

// ConnPool keeps idle connected handles per "ip:port" address for reuse by
// fibers of the owning scheduler. Runtime-thread only.
type ConnPool struct {
	sched   *EpollScheduler
	maxIdle int
	idle    map[string]*queue.Queue // *Handle
	reused  uint64
	dialed  uint64
}

func newConnPool(s *EpollScheduler, maxIdle int) *ConnPool {
	if maxIdle < 0 {
		maxIdle = 0
	}
	return &ConnPool{sched: s, maxIdle: maxIdle, idle: make(map[string]*queue.Queue)}
}

// Get returns an idle connection to addr for f, or dials a new one.
// Connections the peer closed while idle are discarded.
func (p *ConnPool) Get(f api.Fiber, addr string, timeout api.Timeout) (*Handle, error) {
	if q, ok := p.idle[addr]; ok {
		for q.Length() > 0 {
			h := q.Remove().(*Handle)
			if !alive(h) {
				h.Close()
				continue
			}
			h.SetFiber(f)
			p.reused++
			return h, nil
		}
	}
	h := NewHandle(f, -1)
	if err := h.ConnectTo(addr, timeout); err != nil {
		h.Close()
		return nil, err
	}
	p.dialed++
	return h, nil
}

// Put returns h to the pool. Handles that are closed or armed, or that do
// not fit under the idle limit, are closed instead.
func (p *ConnPool) Put(addr string, h *Handle) {
	if h == nil || h.closed || h.fd < 0 {
		return
	}
	q, ok := p.idle[addr]
	if !ok {
		q = queue.New()
		p.idle[addr] = q
	}
	if h.armed != interestNone || q.Length() >= p.maxIdle || p.sched.closing {
		h.Close()
		return
	}
	h.SetFiber(nil)
	q.Add(h)
}

// Len returns the idle connections held for addr.
func (p *ConnPool) Len(addr string) int {
	if q, ok := p.idle[addr]; ok {
		return q.Length()
	}
	return 0
}

// Stats reports how many Gets were served from the pool and by dialing.
func (p *ConnPool) Stats() (reused, dialed uint64) { return p.reused, p.dialed }

// Close closes every idle connection.
func (p *ConnPool) Close() {
	for addr, q := range p.idle {
		for q.Length() > 0 {
			q.Remove().(*Handle).Close()
		}
		delete(p.idle, addr)
	}
}

// alive peeks at an idle connection: pending EOF or unexpected data means
// it cannot be reused.
func alive(h *Handle) bool {
	if h.closed || h.fd < 0 {
		return false
	}
	var b [1]byte
	_, _, err := unix.Recvfrom(h.fd, b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	return err == unix.EAGAIN
}
