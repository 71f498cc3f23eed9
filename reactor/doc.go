// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the edge-triggered readiness multiplexer the
// fiber I/O scheduler waits on: epoll plus an eventfd wake-up on Linux.
package reactor
