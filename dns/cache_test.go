package dns

import (
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrs(ttl time.Duration, ips ...string) []AddrTTL {
	out := make([]AddrTTL, 0, len(ips))
	for _, ip := range ips {
		out = append(out, AddrTTL{IP: net.ParseIP(ip).To4(), TTL: ttl})
	}
	return out
}

func TestCacheServesUntilTTL(t *testing.T) {
	mock := clock.NewMock()
	c := NewCache(8, time.Hour, mock)

	h := c.Put("Example.Test", []string{"alias.test."}, addrs(30*time.Second, "10.0.0.1"))
	assert.Equal(t, "Example.Test.", h.Name)
	h.Release()

	got, ok := c.Get("example.test.")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", got.FirstIP().String())
	assert.Equal(t, []string{"alias.test."}, got.Aliases)
	got.Release()

	mock.Add(31 * time.Second)
	_, ok = c.Get("example.test")
	assert.False(t, ok)
	assert.Zero(t, c.Len())

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCacheCapsTTL(t *testing.T) {
	mock := clock.NewMock()
	c := NewCache(8, time.Minute, mock)

	h := c.Put("capped.test", nil, addrs(24*time.Hour, "10.0.0.2"))
	assert.Equal(t, time.Minute, h.Addrs[0].TTL)
	assert.Equal(t, mock.Now().Add(time.Minute), h.Expires())
	h.Release()
}

func TestHostEntUnexpiredAddr(t *testing.T) {
	now := time.Unix(1000, 0)
	h := &HostEnt{
		Timestamp: now,
		Addrs: []AddrTTL{
			{IP: net.IPv4(10, 0, 0, 1).To4(), TTL: 5 * time.Second},
			{IP: net.IPv4(10, 0, 0, 2).To4(), TTL: 60 * time.Second},
		},
	}
	assert.Equal(t, "10.0.0.1", h.UnexpiredAddr(now.Add(time.Second)).String())
	assert.Equal(t, "10.0.0.2", h.UnexpiredAddr(now.Add(10*time.Second)).String())
	assert.Nil(t, h.UnexpiredAddr(now.Add(time.Minute)))
	assert.True(t, h.Expired(now.Add(time.Minute)))
	assert.Equal(t, "10.0.0.1", h.FirstIP().String())
}

func TestCacheRecyclesReleasedEntries(t *testing.T) {
	c := NewCache(1, time.Hour, clock.NewMock())

	first := c.Put("a.test", nil, addrs(time.Minute, "10.0.0.1"))
	held, ok := c.Get("a.test")
	require.True(t, ok)
	first.Release()

	// evicts a.test; the entry survives while still referenced
	second := c.Put("b.test", nil, addrs(time.Minute, "10.0.0.2"))
	second.Release()
	assert.Zero(t, c.ents.Stats().Free)
	assert.Equal(t, "a.test.", held.Name)

	held.Release()
	assert.Equal(t, 1, c.ents.Stats().Free)

	_, ok = c.Get("a.test")
	assert.False(t, ok)
}

func TestCacheReplaceReleasesOldEntry(t *testing.T) {
	c := NewCache(4, time.Hour, clock.NewMock())
	c.Put("a.test", nil, addrs(time.Minute, "10.0.0.1")).Release()
	c.Put("a.test", nil, addrs(time.Minute, "10.0.0.9")).Release()

	assert.Equal(t, 1, c.ents.Stats().Free)
	h, ok := c.Get("a.test")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.9", h.FirstIP().String())
	h.Release()
}
