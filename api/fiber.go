// File: api/fiber.go
// Author: momentics <momentics@gmail.com>
//
// Contracts for the cooperative scheduling primitive the I/O layer drives.

package api

// ThreadID identifies an OS thread (the kernel tid on Linux).
type ThreadID int

// Fiber is one logical thread of execution multiplexed onto an OS thread.
// Only the fiber's own goroutine may call Suspend or Yield.
type Fiber interface {
	// ID is unique within the process.
	ID() uint64

	// Suspend parks the calling fiber until its runtime resumes it.
	Suspend()

	// Yield requeues the fiber behind every other ready fiber.
	Yield()

	// Runtime returns the runtime this fiber is bound to.
	Runtime() FiberRuntime
}

// FiberRuntime multiplexes fibers onto one OS thread.
type FiberRuntime interface {
	// ThreadID returns the OS thread the runtime loop runs on.
	ThreadID() ThreadID

	// Resume marks a suspended fiber runnable. Runtime-thread only.
	// Resuming a fiber that is not suspended is a no-op.
	Resume(f Fiber)

	// Spawn starts fn on a new fiber of this runtime. Runtime-thread only.
	Spawn(fn func(Fiber)) Fiber

	// SpawnRemote starts fn on a new fiber from any OS thread.
	SpawnRemote(fn func(Fiber)) error
}
