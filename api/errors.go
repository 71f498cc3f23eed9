// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for the fiber I/O runtime.

package api

import (
	"errors"
	"fmt"
	"syscall"
)

// Common errors used across the library.
var (
	// ErrBadFd reports an invalid or already-closed descriptor.
	ErrBadFd = errors.New("invalid file descriptor")
	// ErrCapacity reports that the multiplexer cannot track another descriptor.
	ErrCapacity = errors.New("scheduler capacity exhausted")
	// ErrBusy reports an attempt to arm a second operation on a handle.
	ErrBusy = errors.New("handle already has an outstanding operation")
	// ErrTimeout reports an elapsed deadline with no OS error.
	ErrTimeout = errors.New("operation timeout")
	// ErrClosed reports that the handle was closed while the operation waited.
	ErrClosed = errors.New("handle closed")
	// ErrNotSupported reports an unimplemented path (IPv6 connect, non-linux reactor).
	ErrNotSupported = errors.New("operation not supported")
	// ErrInboxFull reports a remote spawn rejected by a saturated runtime inbox.
	ErrInboxFull = errors.New("runtime inbox full")
	// ErrInvalidArgument reports a buffer or parameter the operation cannot use.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoScheduler reports a fiber whose runtime has no registered I/O scheduler.
	ErrNoScheduler = errors.New("no I/O scheduler for thread")
)

// OpError is an OS-reported socket error surfaced by a handle operation.
type OpError struct {
	Op  string
	Fd  int
	Err syscall.Errno
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("%s fd=%d: %v", e.Op, e.Fd, e.Err)
}

// Unwrap exposes the errno so errors.Is(err, syscall.ECONNREFUSED) works.
func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err if it is an errno, and returns it unchanged otherwise.
func NewOpError(op string, fd int, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &OpError{Op: op, Fd: fd, Err: errno}
	}
	return err
}
