// File: api/timeout.go
// Author: momentics <momentics@gmail.com>
//
// Microsecond timeout encoding shared by handles and schedulers.

package api

import (
	"math"
	"time"
)

// Timeout is a relative deadline in microseconds.
//
// NoTimeout waits indefinitely, zero probes without waiting, and any
// positive value is the number of microseconds until the deadline.
type Timeout int64

// NoTimeout waits until the operation completes or the handle is closed.
const NoTimeout Timeout = -1

// TimeoutOf converts a duration; negative durations mean NoTimeout.
func TimeoutOf(d time.Duration) Timeout {
	if d < 0 {
		return NoTimeout
	}
	return Timeout(d / time.Microsecond)
}

// Duration converts back; NoTimeout yields -1.
func (t Timeout) Duration() time.Duration {
	if t < 0 {
		return -1
	}
	return time.Duration(t) * time.Microsecond
}

// Infinite reports whether t waits forever.
func (t Timeout) Infinite() bool { return t < 0 }

// Millis rounds t up to whole milliseconds for epoll_wait style APIs,
// saturating at math.MaxInt32 because the kernel reads a C int.
func (t Timeout) Millis() int {
	if t < 0 {
		return -1
	}
	ms := int64(t) / 1000
	if t%1000 != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
