//go:build linux
// +build linux

package ufio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
)

const fiberDeadline = 10 * time.Second

// startThread starts an IO thread that is stopped when the test ends.
func startThread(t *testing.T, opts ...Option) *IOThread {
	t.Helper()
	th, err := CreateIOThread(nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		th.Stop()
		_ = th.Wait()
	})
	return th
}

// runFiber runs fn on a new fiber of th and waits for it to return. Use
// assert, not require, inside fn: fibers must return normally.
func runFiber(t *testing.T, th *IOThread, fn func(f api.Fiber)) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, th.Spawn(func(f api.Fiber) {
		defer close(done)
		fn(f)
	}))
	select {
	case <-done:
	case <-time.After(fiberDeadline):
		t.Fatal("fiber did not finish")
	}
}

// socketPair returns a connected pair of non-blocking stream sockets.
func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	return fds[0], fds[1]
}

func ms(n int) api.Timeout { return api.TimeoutOf(time.Duration(n) * time.Millisecond) }
