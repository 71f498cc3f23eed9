// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_other.go) guarded by build tags.

package affinity

import "errors"

// ErrNotSupported is returned where threads cannot be bound to CPUs.
var ErrNotSupported = errors.New("affinity: not supported on this platform")

// SetAffinity binds the calling OS thread to a logical CPU. The caller must
// have locked its goroutine to the thread.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// AllowedCPUs returns the logical CPUs the process may run on, ascending.
func AllowedCPUs() ([]int, error) {
	return allowedCPUsPlatform()
}

// Spread returns the CPU for the i-th of several threads, cycling through
// the allowed set.
func Spread(i int) (int, error) {
	cpus, err := AllowedCPUs()
	if err != nil {
		return -1, err
	}
	if len(cpus) == 0 {
		return -1, ErrNotSupported
	}
	return cpus[i%len(cpus)], nil
}
