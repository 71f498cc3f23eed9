//go:build linux
// +build linux

package ufio

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
)

type acceptedConn struct {
	thread api.ThreadID
	ip     string
	line   string
}

func TestAcceptPlacesConnectionsOnChosenThread(t *testing.T) {
	worker := startThread(t)
	acceptor := startThread(t)
	require.NotEqual(t, worker.ThreadID(), acceptor.ThreadID())

	lfd, err := SetupConnectionToAccept("127.0.0.1", 0, 0, true)
	require.NoError(t, err)
	port, err := LocalPort(lfd)
	require.NoError(t, err)

	got := make(chan acceptedConn, 1)
	acceptErr := make(chan error, 1)
	chooser := FixedChooser{Sched: worker.Scheduler()}

	require.NoError(t, acceptor.Spawn(func(f api.Fiber) {
		l := NewHandle(f, lfd)
		l.IsSetup(true)
		acceptErr <- l.Accept(chooser, func(c *Handle, args any) {
			line, err := c.ReadLineString(64, '\n', ms(2000))
			if err != nil {
				return
			}
			got <- acceptedConn{
				thread: c.Scheduler().ThreadID(),
				ip:     c.RemoteIP(),
				line:   line + args.(string),
			}
			_, _ = c.Write([]byte("pong\n"), ms(2000))
		}, "!")
	}))

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)

	select {
	case c := <-got:
		assert.Equal(t, worker.ThreadID(), c.thread)
		assert.Equal(t, "127.0.0.1", c.ip)
		assert.Equal(t, "ping!", c.line)
	case <-time.After(fiberDeadline):
		t.Fatal("connection was not served")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "pong\n", reply)

	acceptor.Stop()
	require.NoError(t, acceptor.Wait())
	select {
	case err := <-acceptErr:
		assert.ErrorIs(t, err, api.ErrClosed)
	case <-time.After(fiberDeadline):
		t.Fatal("accept loop did not end")
	}
}

func TestHandOffToStoppingThreadClosesConnection(t *testing.T) {
	for i := 0; i < 20; i++ {
		th, err := CreateIOThread(nil)
		require.NoError(t, err)
		fd, peer := socketPair(t)

		handled := make(chan error, 1)
		require.NoError(t, th.Spawn(func(f api.Fiber) {
			c := NewHandle(f, fd)
			defer c.Close()
			if !c.IsSetup(true) {
				handled <- api.ErrBadFd
				return
			}
			_, err := c.Read(make([]byte, 8), api.NoTimeout)
			handled <- err
		}))
		th.Stop()
		require.NoError(t, th.Wait())

		select {
		case err := <-handled:
			assert.ErrorIs(t, err, api.ErrClosed)
		default:
			t.Fatal("queued fiber never ran")
		}

		// the peer sees end of stream once fd is closed
		pfd := []unix.PollFd{{Fd: int32(peer), Events: unix.POLLIN}}
		_, err = unix.Poll(pfd, 5000)
		require.NoError(t, err)
		n, err := unix.Read(peer, make([]byte, 8))
		assert.NoError(t, err)
		assert.Zero(t, n)
		unix.Close(peer)
	}
}

func TestRoundRobinChooser(t *testing.T) {
	a := startThread(t)
	b := startThread(t)
	c := NewRoundRobinChooser(a.Scheduler(), b.Scheduler())

	var picked []api.ThreadID
	for i := 0; i < 4; i++ {
		s, tid := c.PickThread(0)
		assert.Equal(t, s.ThreadID(), tid)
		picked = append(picked, tid)
	}
	assert.Equal(t, []api.ThreadID{a.ThreadID(), b.ThreadID(), a.ThreadID(), b.ThreadID()}, picked)
}

func TestSetupConnectionToAcceptValidatesAddress(t *testing.T) {
	_, err := SetupConnectionToAccept("::1", 0, 0, true)
	assert.ErrorIs(t, err, api.ErrNotSupported)

	_, err = SetupConnectionToAccept("not-an-ip", 0, 0, true)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
