//go:build linux
// +build linux

// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Fiber I/O round trips through the epoll scheduler.

package benchmarks

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/ufio"
)

// BenchmarkFiberPingPong bounces one byte between two fibers of the same
// IO thread over a socket pair; every hop suspends on read readiness.
func BenchmarkFiberPingPong(b *testing.B) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		b.Fatal(err)
	}
	n := b.N
	done := make(chan error, 2)
	bounce := func(fd int, serve bool) func(api.Fiber) {
		return func(f api.Fiber) {
			h := ufio.NewHandle(f, fd)
			defer h.Close()
			buf := make([]byte, 1)
			for i := 0; i < n; i++ {
				if !serve {
					if _, err := h.Write(buf, api.NoTimeout); err != nil {
						done <- err
						return
					}
				}
				if _, err := h.Read(buf, api.NoTimeout); err != nil {
					done <- err
					return
				}
				if serve {
					if _, err := h.Write(buf, api.NoTimeout); err != nil {
						done <- err
						return
					}
				}
			}
			done <- nil
		}
	}

	b.ResetTimer()
	th, err := ufio.CreateIOThread([]func(api.Fiber){bounce(fds[0], true), bounce(fds[1], false)})
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			b.Error(err)
		}
	}
	b.StopTimer()
	th.Stop()
	_ = th.Wait()
}

// BenchmarkSleepZero measures a yield through the scheduler.
func BenchmarkSleepZero(b *testing.B) {
	n := b.N
	done := make(chan struct{})
	b.ResetTimer()
	th, err := ufio.CreateIOThread([]func(api.Fiber){func(f api.Fiber) {
		s := ufio.SchedulerOf(f)
		for i := 0; i < n; i++ {
			s.Sleep(f, 0)
		}
		close(done)
	}})
	if err != nil {
		b.Fatal(err)
	}
	<-done
	b.StopTimer()
	th.Stop()
	_ = th.Wait()
}
