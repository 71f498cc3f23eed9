//go:build linux
// +build linux

// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "github.com/vmamidi/UserFiber/ufio"

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithIOThreads overrides the number of IO threads.
func WithIOThreads(n int) ServerOption {
	return func(s *Server) {
		s.cfg.IOThreads = n
	}
}

// WithListenAddr sets the bind address and port.
func WithListenAddr(addr string, port int) ServerOption {
	return func(s *Server) {
		s.cfg.ListenAddr = addr
		s.cfg.Port = port
	}
}

// WithThreadOptions appends options applied to every IO thread.
func WithThreadOptions(opts ...ufio.Option) ServerOption {
	return func(s *Server) {
		s.cfg.ThreadOptions = append(s.cfg.ThreadOptions, opts...)
	}
}

// WithChooser replaces round-robin placement of accepted connections.
// The function receives the server's schedulers once they exist.
func WithChooser(fn func(scheds []ufio.IOScheduler) ufio.AcceptChooser) ServerOption {
	return func(s *Server) {
		s.chooser = fn
	}
}

// WithHandlerArgs sets the value passed to every handler invocation.
func WithHandlerArgs(args any) ServerOption {
	return func(s *Server) {
		s.args = args
	}
}

// WithCPUPinning binds IO thread i to the i-th allowed CPU, wrapping around
// when there are more threads than CPUs.
func WithCPUPinning() ServerOption {
	return func(s *Server) {
		s.pin = true
	}
}
