//go:build linux
// +build linux

// File: core/concurrency/thread_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux OS thread identity and CPU pinning without cgo.

package concurrency

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/affinity"
	"github.com/vmamidi/UserFiber/api"
)

// CurrentThreadID returns the kernel tid of the calling OS thread. The value
// is only stable for goroutines that called runtime.LockOSThread.
func CurrentThreadID() api.ThreadID {
	return api.ThreadID(unix.Gettid())
}

// PinCurrentThread locks the calling goroutine to its OS thread and binds
// that thread to cpuID. A negative cpuID only locks.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 {
		return nil
	}
	return affinity.SetAffinity(cpuID)
}
