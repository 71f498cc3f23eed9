// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
//
// Structured logging for the runtime. Every package logs through a
// component-scoped zerolog.Logger derived from one process-wide root, and
// verbosity can be changed at runtime (config reload, tests).

package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano}).
		With().Timestamp().Logger()
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// New builds a root logger writing JSON lines to w at the given level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// SetRoot replaces the process-wide root logger.
func SetRoot(l zerolog.Logger) {
	mu.Lock()
	root = l
	mu.Unlock()
}

// Root returns the process-wide root logger.
func Root() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Component returns a child of the root logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Root().With().Str("component", name).Logger()
}

// SetLevel parses a level name ("debug", "info", ...) and applies it globally.
// Unknown names leave the current level untouched and return the parse error.
func SetLevel(name string) error {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
