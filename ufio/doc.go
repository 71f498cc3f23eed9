// Package ufio runs blocking-style socket calls on cooperative fibers.
//
// Every IO thread owns one EpollScheduler: an edge-triggered epoll instance,
// the fd → Handle registry of the sockets its fibers use, and a heap of
// pending deadlines. A fiber calling Handle.Read (or any other operation)
// first tries the non-blocking syscall; if it would block, the scheduler
// arms interest for that descriptor, the fiber suspends, and the scheduler's
// wait loop resumes it when the descriptor becomes ready or the deadline
// passes. The fiber then retries the syscall.
//
// # Timeouts
//
// Operations take an api.Timeout in microseconds: api.NoTimeout waits
// forever, 0 probes without waiting, positive values bound the wait.
//
// # Edge-triggered reads
//
// Readiness is reported only on transitions. A Read that fills the whole
// buffer must be followed by another Read before waiting on readiness
// again, because data already in the kernel buffer produces no new event.
//
// # Threads
//
// A handle belongs to one fiber and is driven by the scheduler of that
// fiber's IO thread. Handles are not safe for use by fibers of other IO
// threads; Close may be called by any fiber of the owning thread.
package ufio
