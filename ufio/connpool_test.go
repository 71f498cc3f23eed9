//go:build linux
// +build linux

package ufio

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmamidi/UserFiber/api"
)

func TestConnPoolReusesLiveConnections(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	peers := make(chan net.Conn, 4)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			peers <- c
		}
	}()

	th := startThread(t, WithConnPoolMaxIdle(1))
	addr := ln.Addr().String()

	runFiber(t, th, func(f api.Fiber) {
		p := th.Scheduler().ConnPool()

		h1, err := p.Get(f, addr, ms(2000))
		if !assert.NoError(t, err) {
			return
		}
		p.Put(addr, h1)
		assert.Equal(t, 1, p.Len(addr))
		assert.Nil(t, h1.Fiber())

		h2, err := p.Get(f, addr, ms(2000))
		assert.NoError(t, err)
		assert.Same(t, h1, h2)
		assert.Equal(t, f, h2.Fiber())

		// over the idle limit
		h3, err := p.Get(f, addr, ms(2000))
		assert.NoError(t, err)
		p.Put(addr, h2)
		p.Put(addr, h3)
		assert.Equal(t, 1, p.Len(addr))
		assert.True(t, h3.Closed())

		reused, dialed := p.Stats()
		assert.Equal(t, uint64(1), reused)
		assert.Equal(t, uint64(2), dialed)
	})
}

func TestConnPoolDiscardsDeadConnections(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	peers := make(chan net.Conn, 4)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			peers <- c
		}
	}()

	th := startThread(t)
	addr := ln.Addr().String()

	var first *Handle
	runFiber(t, th, func(f api.Fiber) {
		p := th.Scheduler().ConnPool()
		h, err := p.Get(f, addr, ms(2000))
		if assert.NoError(t, err) {
			first = h
			p.Put(addr, h)
		}
	})
	require.NotNil(t, first)

	peer := <-peers
	require.NoError(t, peer.Close())

	runFiber(t, th, func(f api.Fiber) {
		p := th.Scheduler().ConnPool()
		th.Scheduler().Sleep(f, ms(20))
		h, err := p.Get(f, addr, ms(2000))
		if assert.NoError(t, err) {
			assert.NotSame(t, first, h)
			h.Close()
		}
		assert.True(t, first.Closed())
	})
}
