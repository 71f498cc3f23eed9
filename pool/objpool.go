// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import (
	"github.com/vmamidi/UserFiber/api"
)

// DefaultMaxPoolSize bounds the number of instances a Pool keeps around.
const DefaultMaxPoolSize = 1000

// Compile-time interface compliance.
var _ api.ObjectPool[*struct{}] = (*Pool[struct{}])(nil)

// Resetter is implemented by values that can clear themselves for reuse
// without giving up their allocations.
type Resetter interface {
	Reset()
}

// Recycler puts a released instance back into its initial state.
type Recycler[E any] interface {
	Recycle(obj *E)
}

// RecyclerFunc adapts a function to Recycler.
type RecyclerFunc[E any] func(obj *E)

// Recycle calls f(obj).
func (f RecyclerFunc[E]) Recycle(obj *E) { f(obj) }

// ResetRecycler recycles by calling Reset on values implementing Resetter.
// Values that do not implement it are left untouched.
type ResetRecycler[E any] struct{}

// Recycle calls obj.Reset when available.
func (ResetRecycler[E]) Recycle(obj *E) {
	if r, ok := any(obj).(Resetter); ok {
		r.Reset()
	}
}

// pristineRecycler destroys and reconstructs in place by overwriting the
// instance with a copy of a freshly constructed one.
type pristineRecycler[E any] struct {
	pristine E
}

func (r *pristineRecycler[E]) Recycle(obj *E) { *obj = r.pristine }

// Pool keeps released objects around for reuse. Free objects form a stack,
// so Get hands back the most recently released one. It does not track
// objects in use, only their count. Pool is not safe for concurrent use; see
// LockingPool, PartitionedPool and ThreadMappedPool.
type Pool[E any] struct {
	newFn     func() *E
	destroy   func(*E)
	recycler  Recycler[E]
	def       pristineRecycler[E]
	free      []*E
	inUse     int
	maxSize   int
	created   uint64
	destroyed uint64
}

// NewPool returns a pool constructing instances with newFn (new(E) if nil).
func NewPool[E any](newFn func() *E) *Pool[E] {
	p := &Pool[E]{}
	p.init(newFn)
	return p
}

func (p *Pool[E]) init(newFn func() *E) {
	if newFn == nil {
		newFn = func() *E { return new(E) }
	}
	p.newFn = newFn
	p.maxSize = DefaultMaxPoolSize
	p.def.pristine = *newFn()
}

// Get acquires an object from the pool, constructing one if none is free.
func (p *Pool[E]) Get() *E {
	var obj *E
	if n := len(p.free); n == 0 {
		obj = p.newFn()
		p.created++
	} else {
		obj = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	}
	p.inUse++
	return obj
}

// Put releases obj into the pool. If the pool already accounts for
// MaxSize objects the instance is destroyed instead of recycled.
func (p *Pool[E]) Put(obj *E) {
	if obj == nil {
		return
	}
	if len(p.free)+p.inUse <= p.maxSize {
		if p.recycler != nil {
			p.recycler.Recycle(obj)
		} else {
			p.def.Recycle(obj)
		}
		p.free = append(p.free, obj)
	} else {
		p.destroyed++
		if p.destroy != nil {
			p.destroy(obj)
		}
	}
	if p.inUse > 0 {
		p.inUse--
	}
}

// PreAlloc constructs enough objects to fill the pool up to its maximum.
func (p *Pool[E]) PreAlloc() {
	toAlloc := p.maxSize - p.inUse
	if toAlloc <= 0 {
		return
	}
	p.inUse = p.maxSize
	for i := 0; i < toAlloc; i++ {
		p.created++
		p.Put(p.newFn())
	}
}

// SetMaxPoolSize sets the maximum number of objects accounted for.
func (p *Pool[E]) SetMaxPoolSize(size int) {
	if size < 0 {
		size = 0
	}
	p.maxSize = size
}

// MaxPoolSize returns the configured maximum.
func (p *Pool[E]) MaxPoolSize() int { return p.maxSize }

// SetRecycler installs a reset strategy; nil restores destroy-and-reconstruct.
func (p *Pool[E]) SetRecycler(r Recycler[E]) { p.recycler = r }

// SetDestroy installs a hook run on instances dropped by a full pool.
func (p *Pool[E]) SetDestroy(fn func(*E)) { p.destroy = fn }

// Stats reports the pool's accounting.
func (p *Pool[E]) Stats() api.PoolStats {
	return api.PoolStats{
		InUse:     p.inUse,
		Free:      len(p.free),
		Created:   p.created,
		Destroyed: p.destroyed,
	}
}
