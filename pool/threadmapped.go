// File: pool/threadmapped.go
// Author: momentics <momentics@gmail.com>
//
// One unlocked pool per OS thread, assigned on first touch.

package pool

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/core/concurrency"
	"github.com/vmamidi/UserFiber/internal/logging"
)

// DefaultThreadPartitions is the partition count of a ThreadMappedPool.
const DefaultThreadPartitions = 32

type paddedPool[E any] struct {
	_ cpu.CacheLinePad
	p Pool[E]
	_ cpu.CacheLinePad
}

type paddedSlot struct {
	_   cpu.CacheLinePad
	tid atomic.Int64
	_   cpu.CacheLinePad
}

// ThreadMappedPool gives every OS thread its own partition. No lock is taken
// once a thread owns a partition, so a partition must only be used from the
// thread (or the cooperative fibers of the runtime) that owns it.
//
// The partition count must be at least the number of OS threads using the
// pool. A thread that finds no free partition terminates the process:
// sharing a partition would break the no-contention guarantee the pool
// exists to provide.
type ThreadMappedPool[E any] struct {
	pools []paddedPool[E]
	slots []paddedSlot
	mu    sync.Mutex
}

// NewThreadMappedPool creates n partitions (DefaultThreadPartitions if n <= 0).
func NewThreadMappedPool[E any](n int, newFn func() *E) *ThreadMappedPool[E] {
	if n <= 0 {
		n = DefaultThreadPartitions
	}
	tp := &ThreadMappedPool[E]{
		pools: make([]paddedPool[E], n),
		slots: make([]paddedSlot, n),
	}
	for i := range tp.pools {
		tp.pools[i].p.init(newFn)
	}
	return tp
}

// Partitions returns the number of partitions.
func (tp *ThreadMappedPool[E]) Partitions() int { return len(tp.pools) }

// lookup finds or claims the partition of tid. The unlocked scan serves the
// steady state; claiming re-scans under the lock.
func (tp *ThreadMappedPool[E]) lookup(tid api.ThreadID) int {
	want := int64(tid)
	for i := range tp.slots {
		if tp.slots[i].tid.Load() == want {
			return i
		}
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()
	for i := range tp.slots {
		switch tp.slots[i].tid.Load() {
		case want:
			return i
		case 0:
			tp.slots[i].tid.Store(want)
			return i
		}
	}

	log := logging.Component("pool")
	log.Fatal().
		Int("thread", int(tid)).
		Int("partitions", len(tp.slots)).
		Msg("thread mapped pool exhausted: more OS threads than partitions")
	return -1
}

// Get acquires from the calling OS thread's partition.
func (tp *ThreadMappedPool[E]) Get() *E { return tp.GetFor(concurrency.CurrentThreadID()) }

// Put releases into the calling OS thread's partition.
func (tp *ThreadMappedPool[E]) Put(obj *E) { tp.PutFor(concurrency.CurrentThreadID(), obj) }

// GetFor acquires from the partition owned by tid.
func (tp *ThreadMappedPool[E]) GetFor(tid api.ThreadID) *E {
	return tp.pools[tp.lookup(tid)].p.Get()
}

// PutFor releases into the partition owned by tid.
func (tp *ThreadMappedPool[E]) PutFor(tid api.ThreadID, obj *E) {
	tp.pools[tp.lookup(tid)].p.Put(obj)
}

// ReleaseThread frees tid's partition for another thread. Pooled objects stay
// in the partition. The caller must guarantee tid no longer uses the pool.
func (tp *ThreadMappedPool[E]) ReleaseThread(tid api.ThreadID) bool {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for i := range tp.slots {
		if tp.slots[i].tid.Load() == int64(tid) {
			tp.slots[i].tid.Store(0)
			return true
		}
	}
	return false
}

// PartitionOf returns the partition index owned by tid, claiming one if needed.
func (tp *ThreadMappedPool[E]) PartitionOf(tid api.ThreadID) int { return tp.lookup(tid) }

// StatsFor reports the accounting of tid's partition.
func (tp *ThreadMappedPool[E]) StatsFor(tid api.ThreadID) api.PoolStats {
	return tp.pools[tp.lookup(tid)].p.Stats()
}

// SetMaxPoolSize applies to every partition. Call before the pool is shared.
func (tp *ThreadMappedPool[E]) SetMaxPoolSize(size int) {
	for i := range tp.pools {
		tp.pools[i].p.SetMaxPoolSize(size)
	}
}

// SetRecycler applies to every partition. Call before the pool is shared.
func (tp *ThreadMappedPool[E]) SetRecycler(r Recycler[E]) {
	for i := range tp.pools {
		tp.pools[i].p.SetRecycler(r)
	}
}

// PreAlloc fills every partition. Call before the pool is shared.
func (tp *ThreadMappedPool[E]) PreAlloc() {
	for i := range tp.pools {
		tp.pools[i].p.PreAlloc()
	}
}
