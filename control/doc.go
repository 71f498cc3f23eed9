// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, hot reload, runtime metrics and debug introspection for the
// fiber I/O runtime.
//
// Provides concurrent-safe state handling primitives including:
//   - Typed configuration lookups with parent fallback, loaded from TOML
//   - File change detection with reload hooks
//   - A metrics registry the IO schedulers publish into
//   - Named debug probes
package control
