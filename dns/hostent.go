// File: dns/hostent.go
// Author: momentics <momentics@gmail.com>
//
// Resolved host entries with per-address TTLs.

package dns

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/vmamidi/UserFiber/pool"
)

// AddrTTL is one resolved address and how long it stays valid.
type AddrTTL struct {
	IP  net.IP
	TTL time.Duration
}

// HostEnt is the answer for one name. Entries handed out by a Resolver are
// shared with the cache and must not be modified; call Release when done.
type HostEnt struct {
	Name      string
	Aliases   []string
	Addrs     []AddrTTL
	Timestamp time.Time

	refs  int32
	owner *pool.LockingPool[HostEnt]
}

// Reset clears the entry for reuse, keeping slice capacity.
func (h *HostEnt) Reset() {
	h.Name = ""
	h.Aliases = h.Aliases[:0]
	h.Addrs = h.Addrs[:0]
	h.Timestamp = time.Time{}
	h.refs = 0
}

// Expired reports whether every address outlived its TTL at now.
func (h *HostEnt) Expired(now time.Time) bool {
	return h.UnexpiredAddr(now) == nil
}

// UnexpiredAddr returns the first address still valid at now, or nil.
func (h *HostEnt) UnexpiredAddr(now time.Time) net.IP {
	for _, a := range h.Addrs {
		if h.Timestamp.Add(a.TTL).After(now) {
			return a.IP
		}
	}
	return nil
}

// FirstIP returns the first address regardless of TTL, or nil.
func (h *HostEnt) FirstIP() net.IP {
	if len(h.Addrs) == 0 {
		return nil
	}
	return h.Addrs[0].IP
}

// Expires returns when the longest-lived address expires.
func (h *HostEnt) Expires() time.Time {
	var longest time.Duration
	for _, a := range h.Addrs {
		if a.TTL > longest {
			longest = a.TTL
		}
	}
	return h.Timestamp.Add(longest)
}

func (h *HostEnt) retain() *HostEnt {
	atomic.AddInt32(&h.refs, 1)
	return h
}

// Release drops the caller's reference. The entry returns to its pool once
// neither callers nor the cache hold it.
func (h *HostEnt) Release() {
	if atomic.AddInt32(&h.refs, -1) == 0 && h.owner != nil {
		h.owner.Put(h)
	}
}

func newHostEntPool() *pool.LockingPool[HostEnt] {
	p := pool.NewLockingPool[HostEnt](nil)
	p.SetRecycler(pool.ResetRecycler[HostEnt]{})
	return p
}

// newHostEnt takes an entry from p holding one reference.
func newHostEnt(p *pool.LockingPool[HostEnt]) *HostEnt {
	h := p.Get()
	h.owner = p
	h.refs = 1
	return h
}
