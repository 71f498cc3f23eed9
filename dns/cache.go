// File: dns/cache.go
// Author: momentics <momentics@gmail.com>
//
// Bounded host cache with per-address expiry.

package dns

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	miekg "github.com/miekg/dns"

	"github.com/vmamidi/UserFiber/pool"
)

const (
	// DefaultCacheSize is the number of names a Cache keeps.
	DefaultCacheSize = 1024
	// DefaultMaxTTL caps the TTL of cached addresses.
	DefaultMaxTTL = time.Hour
)

// Cache maps lower-case fully qualified names to host entries. An entry is
// served while at least one of its addresses is within its TTL; TTLs are
// capped at the cache's maximum. Safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, *HostEnt]
	maxTTL time.Duration
	clock  clock.Clock
	ents   *pool.LockingPool[HostEnt]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates a cache of size names (DefaultCacheSize if size <= 0).
func NewCache(size int, maxTTL time.Duration, clk clock.Clock) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if maxTTL <= 0 {
		maxTTL = DefaultMaxTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	c := &Cache{maxTTL: maxTTL, clock: clk, ents: newHostEntPool()}
	// evictions only happen inside Add and Get, under c.mu
	c.lru, _ = lru.NewWithEvict[string, *HostEnt](size, func(_ string, h *HostEnt) {
		h.Release()
	})
	return c
}

func cacheKey(name string) string { return strings.ToLower(miekg.Fqdn(name)) }

// Get returns a referenced entry for name, or false when it is missing or
// expired. The caller must Release the entry.
func (c *Cache) Get(name string) (*HostEnt, bool) {
	key := cacheKey(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if h.Expired(c.clock.Now()) {
		c.lru.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return h.retain(), true
}

// Put builds and caches an entry for name from addrs, returning it with a
// reference for the caller.
func (c *Cache) Put(name string, aliases []string, addrs []AddrTTL) *HostEnt {
	h := newHostEnt(c.ents)
	h.Name = miekg.Fqdn(name)
	h.Aliases = append(h.Aliases, aliases...)
	for _, a := range addrs {
		if a.TTL > c.maxTTL {
			a.TTL = c.maxTTL
		}
		h.Addrs = append(h.Addrs, a)
	}
	h.Timestamp = c.clock.Now()

	h.retain() // the cache's reference
	c.mu.Lock()
	if old, ok := c.lru.Peek(cacheKey(name)); ok {
		// replaced values are not reported as evicted
		defer old.Release()
	}
	c.lru.Add(cacheKey(name), h)
	c.mu.Unlock()
	return h
}

// Remove drops name from the cache.
func (c *Cache) Remove(name string) {
	c.mu.Lock()
	c.lru.Remove(cacheKey(name))
	c.mu.Unlock()
}

// Len returns the number of cached names, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) { return c.hits.Load(), c.misses.Load() }
