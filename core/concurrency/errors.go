// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import (
	"errors"

	"github.com/vmamidi/UserFiber/affinity"
)

var (
	// ErrRuntimeStopped indicates the runtime no longer accepts fibers
	ErrRuntimeStopped = errors.New("runtime is stopped")

	// ErrAffinityNotSupported indicates CPU affinity is not supported on this platform
	ErrAffinityNotSupported = affinity.ErrNotSupported
)
