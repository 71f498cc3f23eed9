// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines abstract pooling APIs used for allocation-free scheduler hot paths.

package api

// ObjectPool provides generic recycling of Go objects allocated transiently.
type ObjectPool[T any] interface {
	// Get returns a reset instance, reusing a released one when available.
	Get() T

	// Put returns an instance for reuse, or destroys it if the pool is full.
	Put(obj T)
}

// PoolStats is a point-in-time view of a pool's accounting.
type PoolStats struct {
	InUse     int
	Free      int
	Created   uint64
	Destroyed uint64
}
