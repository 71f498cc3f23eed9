//go:build !linux
// +build !linux

// File: core/concurrency/thread_stub.go
// Author: momentics <momentics@gmail.com>
//
// Fallback thread identity for platforms without gettid.

package concurrency

import (
	"runtime"

	"github.com/vmamidi/UserFiber/affinity"
	"github.com/vmamidi/UserFiber/api"
)

// CurrentThreadID returns a constant on platforms without a tid syscall.
func CurrentThreadID() api.ThreadID { return 1 }

// PinCurrentThread only locks the goroutine to its OS thread.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 {
		return nil
	}
	return affinity.SetAffinity(cpuID)
}
