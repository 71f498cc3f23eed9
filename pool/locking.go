// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import (
	"sync"

	"github.com/vmamidi/UserFiber/api"
)

// LockingPool is a Pool guarded by a mutex.
type LockingPool[E any] struct {
	mu sync.Mutex
	p  Pool[E]
}

// NewLockingPool returns a mutex-guarded pool.
func NewLockingPool[E any](newFn func() *E) *LockingPool[E] {
	lp := &LockingPool[E]{}
	lp.p.init(newFn)
	return lp
}

func (lp *LockingPool[E]) Get() *E {
	lp.mu.Lock()
	obj := lp.p.Get()
	lp.mu.Unlock()
	return obj
}

func (lp *LockingPool[E]) Put(obj *E) {
	lp.mu.Lock()
	lp.p.Put(obj)
	lp.mu.Unlock()
}

func (lp *LockingPool[E]) PreAlloc() {
	lp.mu.Lock()
	lp.p.PreAlloc()
	lp.mu.Unlock()
}

func (lp *LockingPool[E]) SetMaxPoolSize(size int) {
	lp.mu.Lock()
	lp.p.SetMaxPoolSize(size)
	lp.mu.Unlock()
}

func (lp *LockingPool[E]) SetRecycler(r Recycler[E]) {
	lp.mu.Lock()
	lp.p.SetRecycler(r)
	lp.mu.Unlock()
}

func (lp *LockingPool[E]) SetDestroy(fn func(*E)) {
	lp.mu.Lock()
	lp.p.SetDestroy(fn)
	lp.mu.Unlock()
}

func (lp *LockingPool[E]) Stats() api.PoolStats {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.p.Stats()
}
