// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness multiplexer interface used by the I/O scheduler.

package reactor

// Events is a readiness bit set.
type Events uint32

const (
	// EventRead reports the descriptor readable (or a pending accept).
	EventRead Events = 1 << iota
	// EventWrite reports the descriptor writable (or a finished connect).
	EventWrite
	// EventError reports an error condition on the descriptor.
	EventError
	// EventHangup reports the peer closed its end.
	EventHangup
)

// Event is one readiness notification returned by Wait.
type Event struct {
	Fd     int
	Events Events
}

// EventReactor is an edge-triggered, one-shot readiness multiplexer.
// Interest fires at most once per Add/Modify; callers re-arm with Modify.
// All methods except Wake must be called from the owning thread.
type EventReactor interface {
	// Add starts watching fd for ev.
	Add(fd int, ev Events) error

	// Modify re-arms fd for ev. Current readiness is re-evaluated, so data
	// that arrived before the call still produces an event.
	Modify(fd int, ev Events) error

	// Remove stops watching fd.
	Remove(fd int) error

	// Wait blocks up to timeoutMs (-1 forever) and fills events.
	// Wake-ups caused by Wake are consumed and not reported.
	Wait(events []Event, timeoutMs int) (n int, err error)

	// Wake interrupts a blocked Wait from any thread.
	Wake() error

	// Close releases the multiplexer.
	Close() error
}
