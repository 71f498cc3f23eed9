// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package dns resolves host names for fibers without blocking their IO
// thread: queries go out over non-blocking UDP handles and the calling fiber
// suspends until the answer or the deadline arrives. Answers are cached per
// name and served while any address is within its TTL.
package dns
