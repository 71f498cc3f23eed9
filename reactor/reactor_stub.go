//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "errors"

// ErrNotSupported is returned on platforms without an edge-triggered backend.
var ErrNotSupported = errors.New("reactor: this platform is not supported")

// NewReactor returns an error for unsupported platforms.
func NewReactor(maxEvents int) (EventReactor, error) {
	return nil, ErrNotSupported
}
