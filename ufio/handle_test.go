//go:build linux
// +build linux

package ufio

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
)

func TestReadLineAcrossDeliveries(t *testing.T) {
	th := startThread(t)
	a, b := socketPair(t)
	defer unix.Close(b)

	runFiber(t, th, func(f api.Fiber) {
		h := NewHandle(f, a)
		defer h.Close()
		assert.True(t, h.IsSetup(true))
		s := th.Scheduler()

		f.Runtime().Spawn(func(w api.Fiber) {
			_, err := unix.Write(b, []byte("AB"))
			assert.NoError(t, err)
			s.Sleep(w, ms(10))
			_, err = unix.Write(b, []byte("C\n"))
			assert.NoError(t, err)
		})

		buf := bytes.Repeat([]byte{0xff}, 16)
		n, err := h.ReadLine(buf, '\n', ms(2000))
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, "ABC", string(buf[:n]))
		assert.Equal(t, byte(0), buf[n])
	})
}

func TestReadLineKeepsRemainder(t *testing.T) {
	th := startThread(t)
	a, b := socketPair(t)
	defer unix.Close(b)

	_, err := unix.Write(b, []byte("one\ntwo\nabcdefg\n"))
	require.NoError(t, err)

	runFiber(t, th, func(f api.Fiber) {
		h := NewHandle(f, a)
		defer h.Close()
		assert.True(t, h.IsSetup(true))

		line, err := h.ReadLineString(16, '\n', ms(1000))
		assert.NoError(t, err)
		assert.Equal(t, "one", line)

		line, err = h.ReadLineString(16, '\n', 0)
		assert.NoError(t, err)
		assert.Equal(t, "two", line)

		// no delimiter within the first len(buf)-1 bytes
		buf := make([]byte, 4)
		n, err := h.ReadLine(buf, '\n', 0)
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, []byte("abc\x00"), buf)

		n, err = h.ReadLine(buf, '\n', 0)
		assert.NoError(t, err)
		assert.Equal(t, "def", string(buf[:n]))

		// delimiter exactly at the limit
		n, err = h.ReadLine(buf[:2], '\n', 0)
		assert.NoError(t, err)
		assert.Equal(t, "g", string(buf[:n]))

		_, err = h.ReadLine(buf, '\n', 0)
		assert.ErrorIs(t, err, api.ErrTimeout)
	})
}

func TestReadLineEndOfStream(t *testing.T) {
	th := startThread(t)
	a, b := socketPair(t)

	_, err := unix.Write(b, []byte("tail"))
	require.NoError(t, err)
	require.NoError(t, unix.Close(b))

	runFiber(t, th, func(f api.Fiber) {
		h := NewHandle(f, a)
		defer h.Close()
		assert.True(t, h.IsSetup(true))

		line, err := h.ReadLineString(64, '\n', ms(1000))
		assert.NoError(t, err)
		assert.Equal(t, "tail", line)

		n, err := h.ReadLine(make([]byte, 8), '\n', ms(1000))
		assert.ErrorIs(t, err, io.EOF)
		assert.Zero(t, n)
	})
}

func TestReadLineRejectsTinyBuffer(t *testing.T) {
	h := NewHandle(nil, -1)
	n, err := h.ReadLine(make([]byte, 1), '\n', 0)
	assert.Equal(t, -1, n)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, b := socketPair(t)
	defer unix.Close(b)

	h := NewHandle(nil, a)
	assert.True(t, h.IsSetup(true))
	assert.True(t, h.IsSetup(true))
	assert.True(t, h.Close())
	assert.False(t, h.Close())
	assert.Equal(t, -1, h.Fd())
	assert.True(t, h.Closed())
	assert.False(t, h.IsSetup(true))

	_, err := h.Read(make([]byte, 1), 0)
	assert.ErrorIs(t, err, api.ErrBadFd)
}

func TestIsSetupInvalidFd(t *testing.T) {
	assert.False(t, NewHandle(nil, -1).IsSetup(true))

	h := NewHandle(nil, -1)
	a, b := socketPair(t)
	defer unix.Close(b)
	assert.True(t, h.SetFd(a, true))
	assert.False(t, h.SetFd(b, true))
	assert.True(t, h.Close())
}

func TestWriteLargerThanSocketBuffer(t *testing.T) {
	SetSockBufSizes(4096, 4096)
	defer SetSockBufSizes(0, 0)

	th := startThread(t)
	lfd, err := SetupConnectionToAccept("127.0.0.1", 0, 0, true)
	require.NoError(t, err)
	port, err := LocalPort(lfd)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 1<<16) // 1 MiB

	require.NoError(t, th.Spawn(func(f api.Fiber) {
		l := NewHandle(f, lfd)
		l.IsSetup(true)
		_ = l.Accept(nil, func(c *Handle, _ any) {
			buf := make([]byte, 32*1024)
			total := 0
			for total < len(payload) {
				n, err := c.Read(buf, ms(5000))
				if err != nil {
					return
				}
				total += n
			}
			_, _ = c.Write([]byte(fmt.Sprintf("%d\n", total)), ms(5000))
		}, nil)
	}))

	runFiber(t, th, func(f api.Fiber) {
		c := NewHandle(f, -1)
		defer c.Close()
		sa, err := ParseSockaddr(fmt.Sprintf("127.0.0.1:%d", port))
		if !assert.NoError(t, err) {
			return
		}
		assert.NoError(t, c.Connect(sa, ms(2000)))
		assert.Equal(t, "127.0.0.1", c.RemoteIP())
		assert.Equal(t, port, c.RemotePort())

		n, err := c.Write(payload, ms(5000))
		assert.NoError(t, err)
		assert.Equal(t, len(payload), n)

		line, err := c.ReadLineString(32, '\n', ms(5000))
		assert.NoError(t, err)
		assert.Equal(t, strconv.Itoa(len(payload)), line)
	})
}

func TestWritevAdvancesAcrossBuffers(t *testing.T) {
	iovs := [][]byte{[]byte("ab"), []byte("cde"), []byte("f")}
	rest := advance(iovs, 3)
	require.Len(t, rest, 2)
	assert.Equal(t, "de", string(rest[0]))
	assert.Equal(t, "f", string(rest[1]))
	assert.Empty(t, advance(rest, 3))
}

func TestWritev(t *testing.T) {
	th := startThread(t)
	a, b := socketPair(t)
	defer unix.Close(b)

	runFiber(t, th, func(f api.Fiber) {
		h := NewHandle(f, a)
		defer h.Close()
		h.IsSetup(true)
		n, err := h.Writev([][]byte{[]byte("head "), nil, []byte("body\n")}, ms(1000))
		assert.NoError(t, err)
		assert.Equal(t, 10, n)
	})
	buf := make([]byte, 32)
	n, err := unix.Read(b, buf)
	require.NoError(t, err)
	assert.Equal(t, "head body\n", string(buf[:n]))
}

func TestConnectRefused(t *testing.T) {
	th := startThread(t)
	// bind then close to get a port nobody listens on
	fd, err := SetupConnectionToAccept("127.0.0.1", 0, 1, false)
	require.NoError(t, err)
	port, err := LocalPort(fd)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fd))

	runFiber(t, th, func(f api.Fiber) {
		h := NewHandle(f, -1)
		defer h.Close()
		err := h.ConnectTo(fmt.Sprintf("127.0.0.1:%d", port), ms(2000))
		assert.ErrorIs(t, err, unix.ECONNREFUSED)
		var opErr *api.OpError
		assert.ErrorAs(t, err, &opErr)
		assert.Equal(t, unix.ECONNREFUSED, h.Errno())
	})
}

func TestConnectRejectsIPv6(t *testing.T) {
	h := NewHandle(nil, -1)
	err := h.Connect(&unix.SockaddrInet6{Port: 80}, api.NoTimeout)
	assert.ErrorIs(t, err, api.ErrNotSupported)
	assert.Equal(t, -1, h.Fd())

	_, err = ParseSockaddr("[::1]:80")
	assert.ErrorIs(t, err, api.ErrNotSupported)
	_, err = ParseSockaddr("nonsense")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestDatagramRoundTrip(t *testing.T) {
	th := startThread(t)
	rx, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	require.NoError(t, unix.Bind(rx, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	port, err := LocalPort(rx)
	require.NoError(t, err)
	tx, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	runFiber(t, th, func(f api.Fiber) {
		r := NewHandle(f, rx)
		s := NewHandle(f, tx)
		defer r.Close()
		defer s.Close()
		r.IsSetup(true)
		s.IsSetup(true)

		f.Runtime().Spawn(func(w api.Fiber) {
			s.SetFiber(w)
			th.Scheduler().Sleep(w, ms(5))
			n, err := s.SendTo([]byte("ping"), &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}, Port: port}, ms(1000))
			assert.NoError(t, err)
			assert.Equal(t, 4, n)
		})

		buf := make([]byte, 64)
		n, from, err := r.RecvFrom(buf, 0, ms(2000))
		assert.NoError(t, err)
		assert.Equal(t, "ping", string(buf[:n]))
		_, fromPort := sockaddrIP(from)
		assert.NotZero(t, fromPort)
	})
}
