//go:build linux
// +build linux

// File: ufio/sleep.go
// Author: momentics <momentics@gmail.com>
//
// Deadline ordering for armed handles and sleeping fibers.

package ufio

import (
	"math"

	"github.com/vmamidi/UserFiber/api"
)

// noWake marks an empty sleep list.
const noWake = math.MaxInt64

// sleepEntry is one pending deadline. It refers to its handle by fd and
// arm generation, resolved through the scheduler registry when it fires, or
// to a bare fiber for timer-only sleeps.
type sleepEntry struct {
	wake  int64
	seq   uint64
	index int
	fd    int
	gen   uint64
	fiber api.Fiber
}

// sleepList is a min-heap on (wake, seq). Equal wake times are allowed and
// fire in insertion order.
type sleepList []*sleepEntry

func (l sleepList) Len() int { return len(l) }

func (l sleepList) Less(i, j int) bool {
	if l[i].wake != l[j].wake {
		return l[i].wake < l[j].wake
	}
	return l[i].seq < l[j].seq
}

func (l sleepList) Swap(i, j int) {
	l[i], l[j] = l[j], l[i]
	l[i].index = i
	l[j].index = j
}

func (l *sleepList) Push(x any) {
	e := x.(*sleepEntry)
	e.index = len(*l)
	*l = append(*l, e)
}

func (l *sleepList) Pop() any {
	old := *l
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*l = old[:n-1]
	return e
}

// head returns the earliest wake time or noWake.
func (l sleepList) head() int64 {
	if len(l) == 0 {
		return noWake
	}
	return l[0].wake
}

// waitBudget bounds one multiplexer wait: the caller's timeout, shortened to
// the earliest pending deadline, and zero once that deadline has passed.
func waitBudget(caller api.Timeout, earliest, now int64) api.Timeout {
	if earliest == noWake {
		return caller
	}
	d := earliest - now
	if d < 0 {
		d = 0
	}
	if caller.Infinite() || api.Timeout(d) < caller {
		return api.Timeout(d)
	}
	return caller
}
