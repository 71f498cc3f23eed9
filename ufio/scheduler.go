//go:build linux
// +build linux

// File: ufio/scheduler.go
// Author: momentics <momentics@gmail.com>
//
// I/O scheduler capability contract and the process-wide thread registry.

package ufio

import (
	"sync"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/core/concurrency"
)

// IOScheduler is the surface every readiness backend provides.
//
// The SetupFor* calls arm one kind of interest for h, suspend h's fiber and
// return once the descriptor is ready (nil), the deadline passed
// (api.ErrTimeout), the handle was closed (api.ErrClosed), or arming failed.
type IOScheduler interface {
	SetupForConnect(h *Handle, to api.Timeout) error
	SetupForAccept(h *Handle, to api.Timeout) error
	SetupForRead(h *Handle, to api.Timeout) error
	SetupForWrite(h *Handle, to api.Timeout) error

	// CloseConnection drops all interest and registry state for h.
	CloseConnection(h *Handle) bool

	// RPoll returns the handles that are readable now. If none are and to
	// is not zero, f waits for the first of them (or the deadline).
	RPoll(f api.Fiber, handles []*Handle, to api.Timeout) ([]*Handle, error)

	// WaitForEvents runs one wait-and-dispatch iteration.
	WaitForEvents(to api.Timeout)

	// Sleep suspends f for to microseconds.
	Sleep(f api.Fiber, to api.Timeout)

	// Now returns the scheduler clock in microseconds.
	Now() int64

	ThreadID() api.ThreadID
	Runtime() api.FiberRuntime
	ConnPool() *ConnPool
}

var registry = struct {
	sync.RWMutex
	m map[api.ThreadID]IOScheduler
}{m: make(map[api.ThreadID]IOScheduler)}

// Register binds s to tid. If another scheduler already owns tid it is
// returned with false and the registry is unchanged.
func Register(tid api.ThreadID, s IOScheduler) (IOScheduler, bool) {
	registry.Lock()
	defer registry.Unlock()
	if cur, ok := registry.m[tid]; ok && cur != s {
		return cur, false
	}
	registry.m[tid] = s
	return s, true
}

// Unregister removes s from tid if it is still the owner.
func Unregister(tid api.ThreadID, s IOScheduler) {
	registry.Lock()
	if registry.m[tid] == s {
		delete(registry.m, tid)
	}
	registry.Unlock()
}

// SchedulerFor returns the scheduler of OS thread tid, or nil.
func SchedulerFor(tid api.ThreadID) IOScheduler {
	registry.RLock()
	defer registry.RUnlock()
	return registry.m[tid]
}

// CurrentScheduler returns the scheduler of the calling OS thread. Only
// meaningful on a goroutine locked to an IO thread.
func CurrentScheduler() IOScheduler {
	return SchedulerFor(concurrency.CurrentThreadID())
}

// SchedulerOf returns the scheduler driving f's runtime.
func SchedulerOf(f api.Fiber) IOScheduler {
	if f == nil {
		return nil
	}
	return SchedulerFor(f.Runtime().ThreadID())
}
