// File: pool/partitioned.go
// Author: momentics <momentics@gmail.com>
//
// Hash-partitioned locking pools to spread lock contention across threads.

package pool

import (
	"golang.org/x/sys/cpu"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/core/concurrency"
)

// DefaultPartitions is the partition count of a PartitionedPool.
const DefaultPartitions = 17

type paddedLockingPool[E any] struct {
	_ cpu.CacheLinePad
	p LockingPool[E]
	_ cpu.CacheLinePad
}

// PartitionedPool spreads objects over several locking pools, choosing one
// by hashing the OS thread id. Several threads may share a partition.
type PartitionedPool[E any] struct {
	pools []paddedLockingPool[E]
}

// NewPartitionedPool creates n partitions (DefaultPartitions if n <= 0).
func NewPartitionedPool[E any](n int, newFn func() *E) *PartitionedPool[E] {
	if n <= 0 {
		n = DefaultPartitions
	}
	pp := &PartitionedPool[E]{pools: make([]paddedLockingPool[E], n)}
	for i := range pp.pools {
		pp.pools[i].p.p.init(newFn)
	}
	return pp
}

// Partitions returns the number of partitions.
func (pp *PartitionedPool[E]) Partitions() int { return len(pp.pools) }

func (pp *PartitionedPool[E]) lookup(tid api.ThreadID) int {
	t := uint64(tid)
	return int(uint32(t*(t+3)) % uint32(len(pp.pools)))
}

// Get acquires from the calling OS thread's partition.
func (pp *PartitionedPool[E]) Get() *E { return pp.GetFor(concurrency.CurrentThreadID()) }

// Put releases into the calling OS thread's partition.
func (pp *PartitionedPool[E]) Put(obj *E) { pp.PutFor(concurrency.CurrentThreadID(), obj) }

// GetFor acquires from the partition owning tid.
func (pp *PartitionedPool[E]) GetFor(tid api.ThreadID) *E {
	return pp.pools[pp.lookup(tid)].p.Get()
}

// PutFor releases into the partition owning tid.
func (pp *PartitionedPool[E]) PutFor(tid api.ThreadID, obj *E) {
	pp.pools[pp.lookup(tid)].p.Put(obj)
}

// Pool returns the partition used by tid.
func (pp *PartitionedPool[E]) Pool(tid api.ThreadID) *LockingPool[E] {
	return &pp.pools[pp.lookup(tid)].p
}

func (pp *PartitionedPool[E]) SetMaxPoolSize(size int) {
	for i := range pp.pools {
		pp.pools[i].p.SetMaxPoolSize(size)
	}
}

func (pp *PartitionedPool[E]) SetRecycler(r Recycler[E]) {
	for i := range pp.pools {
		pp.pools[i].p.SetRecycler(r)
	}
}

func (pp *PartitionedPool[E]) PreAlloc() {
	for i := range pp.pools {
		pp.pools[i].p.PreAlloc()
	}
}

// Stats sums the accounting of every partition.
func (pp *PartitionedPool[E]) Stats() api.PoolStats {
	var out api.PoolStats
	for i := range pp.pools {
		out = addStats(out, pp.pools[i].p.Stats())
	}
	return out
}

func addStats(a, b api.PoolStats) api.PoolStats {
	return api.PoolStats{
		InUse:     a.InUse + b.InUse,
		Free:      a.Free + b.Free,
		Created:   a.Created + b.Created,
		Destroyed: a.Destroyed + b.Destroyed,
	}
}
