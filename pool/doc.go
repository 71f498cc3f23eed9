// Package pool
// Author: momentics <momentics@gmail.com>
//
// Recyclable object pools for allocation-free hot paths of the fiber I/O runtime.
// Pool is unsynchronized; LockingPool adds a mutex; PartitionedPool hashes OS
// threads onto several locking pools; ThreadMappedPool gives every OS thread a
// partition of its own and takes no lock after first touch.
package pool
