//go:build linux
// +build linux

// File: dns/resolver.go
// Author: momentics <momentics@gmail.com>
//
// Stub resolver that queries nameservers over UDP from a fiber, suspending
// it through the IO scheduler instead of blocking the IO thread.

package dns

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	miekg "github.com/miekg/dns"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/control"
	"github.com/vmamidi/UserFiber/internal/logging"
	"github.com/vmamidi/UserFiber/pool"
	"github.com/vmamidi/UserFiber/ufio"
)

var (
	// ErrNotFound reports a name without IPv4 addresses.
	ErrNotFound = errors.New("dns: no such host")
	// ErrServerFailure reports a response code other than success or NXDOMAIN.
	ErrServerFailure = errors.New("dns: server failure")
	// ErrNoServers reports a resolver without nameservers.
	ErrNoServers = errors.New("dns: no nameservers configured")
)

const (
	msgBufSize   = 4096
	resolvConf   = "/etc/resolv.conf"
	defaultDNSTO = 5 * time.Second
)

// Resolver resolves host names on behalf of a fiber.
type Resolver interface {
	Resolve(f api.Fiber, name string, timeout api.Timeout) (*HostEnt, error)
}

type msgBuf struct {
	data []byte
}

// UFIOResolver sends A queries with ufio handles and caches the answers.
// One resolver may be shared by fibers of every IO thread.
type UFIOResolver struct {
	servers []string
	cache   *Cache
	bufs    *pool.PartitionedPool[msgBuf]
	log     zerolog.Logger
}

var _ Resolver = (*UFIOResolver)(nil)

// NewUFIOResolver creates a resolver querying servers ("ip:port" or bare
// IPv4 addresses, port 53) in order.
func NewUFIOResolver(servers []string, cache *Cache) (*UFIOResolver, error) {
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	norm := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		if _, err := ufio.ParseSockaddr(s); err != nil {
			return nil, fmt.Errorf("dns: nameserver %q: %w", s, err)
		}
		norm = append(norm, s)
	}
	if cache == nil {
		cache = NewCache(DefaultCacheSize, DefaultMaxTTL, nil)
	}
	return &UFIOResolver{
		servers: norm,
		cache:   cache,
		bufs: pool.NewPartitionedPool[msgBuf](0, func() *msgBuf {
			return &msgBuf{data: make([]byte, msgBufSize)}
		}),
		log: logging.Component("dns"),
	}, nil
}

// NewUFIOResolverFromConf reads dns.nameservers and dns.cache_size from
// conf, falling back to the IPv4 nameservers of /etc/resolv.conf.
func NewUFIOResolverFromConf(conf *control.Conf) (*UFIOResolver, error) {
	var servers []string
	size := DefaultCacheSize
	if conf != nil {
		servers = conf.GetStrings(control.KeyNameservers, nil)
		size = conf.GetInt(control.KeyDNSCacheSize, DefaultCacheSize)
	}
	if len(servers) == 0 {
		cc, err := miekg.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("dns: %w", err)
		}
		for _, s := range cc.Servers {
			if ip := net.ParseIP(s); ip != nil && ip.To4() != nil {
				servers = append(servers, net.JoinHostPort(s, cc.Port))
			}
		}
	}
	return NewUFIOResolver(servers, NewCache(size, DefaultMaxTTL, nil))
}

// Cache returns the resolver's host cache.
func (r *UFIOResolver) Cache() *Cache { return r.cache }

// Resolve returns the IPv4 addresses of name, from the cache when fresh.
// IPv4 literals resolve to themselves. The caller must Release the entry.
func (r *UFIOResolver) Resolve(f api.Fiber, name string, timeout api.Timeout) (*HostEnt, error) {
	if ip := net.ParseIP(strings.TrimSuffix(name, ".")); ip != nil && ip.To4() != nil {
		h := newHostEnt(r.cache.ents)
		h.Name = name
		h.Addrs = append(h.Addrs, AddrTTL{IP: ip.To4(), TTL: DefaultMaxTTL})
		h.Timestamp = r.cache.clock.Now()
		return h, nil
	}
	if h, ok := r.cache.Get(name); ok {
		return h, nil
	}
	if timeout.Infinite() {
		timeout = api.TimeoutOf(defaultDNSTO)
	}

	var lastErr error
	for _, server := range r.servers {
		aliases, addrs, err := r.query(f, server, name, timeout)
		if err == nil {
			return r.cache.Put(name, aliases, addrs), nil
		}
		lastErr = err
		if errors.Is(err, ErrNotFound) {
			break
		}
		r.log.Debug().Err(err).Str("server", server).Str("name", name).Msg("query failed")
	}
	return nil, lastErr
}

func (r *UFIOResolver) query(f api.Fiber, server, name string, timeout api.Timeout) ([]string, []AddrTTL, error) {
	sa, err := ufio.ParseSockaddr(server)
	if err != nil {
		return nil, nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, api.NewOpError("socket", -1, err)
	}
	h := ufio.NewHandle(f, fd)
	defer h.Close()
	if !h.IsSetup(true) {
		return nil, nil, api.ErrBadFd
	}

	tid := f.Runtime().ThreadID()
	buf := r.bufs.GetFor(tid)
	defer r.bufs.PutFor(tid, buf)

	q := new(miekg.Msg)
	q.SetQuestion(miekg.Fqdn(name), miekg.TypeA)
	q.RecursionDesired = true
	q.SetEdns0(msgBufSize, false)
	out, err := q.PackBuffer(buf.data)
	if err != nil {
		return nil, nil, fmt.Errorf("dns: pack: %w", err)
	}
	if _, err := h.SendTo(out, sa, timeout); err != nil {
		return nil, nil, err
	}

	sched := h.Scheduler()
	if sched == nil {
		return nil, nil, api.ErrNoScheduler
	}
	deadline := sched.Now() + int64(timeout)
	for {
		left := api.Timeout(deadline - sched.Now())
		if left <= 0 {
			return nil, nil, api.ErrTimeout
		}
		n, from, err := h.RecvFrom(buf.data, 0, left)
		if err != nil {
			return nil, nil, err
		}
		if !sameServer(from, sa) {
			continue
		}
		resp := new(miekg.Msg)
		if err := resp.Unpack(buf.data[:n]); err != nil || resp.Id != q.Id || !resp.Response {
			r.log.Debug().Str("server", server).Msg("ignoring stray datagram")
			continue
		}
		return answers(resp)
	}
}

func sameServer(from unix.Sockaddr, sa *unix.SockaddrInet4) bool {
	f4, ok := from.(*unix.SockaddrInet4)
	return ok && f4.Port == sa.Port && f4.Addr == sa.Addr
}

// answers extracts CNAME aliases and A records from a response.
func answers(resp *miekg.Msg) ([]string, []AddrTTL, error) {
	switch resp.Rcode {
	case miekg.RcodeSuccess:
	case miekg.RcodeNameError:
		return nil, nil, ErrNotFound
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrServerFailure, miekg.RcodeToString[resp.Rcode])
	}
	var (
		aliases []string
		addrs   []AddrTTL
	)
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *miekg.A:
			addrs = append(addrs, AddrTTL{IP: v.A.To4(), TTL: time.Duration(v.Hdr.Ttl) * time.Second})
		case *miekg.CNAME:
			aliases = append(aliases, v.Target)
		}
	}
	if len(addrs) == 0 {
		return nil, nil, ErrNotFound
	}
	return aliases, addrs, nil
}
