//go:build linux
// +build linux

// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server bootstraps a set of IO threads, a listening socket and an accept
// fiber that places every connection on one of the threads.

package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vmamidi/UserFiber/control"
	"github.com/vmamidi/UserFiber/internal/logging"
	"github.com/vmamidi/UserFiber/ufio"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNoHandler      = errors.New("server: nil handler")
)

// Server is the facade over IO threads, listener and accept dispatch.
type Server struct {
	cfg     *Config
	handler ufio.AcceptHandler
	args    any
	chooser func([]ufio.IOScheduler) ufio.AcceptChooser
	pin     bool

	mu       sync.Mutex
	running  bool
	threads  []*ufio.IOThread
	port     int
	ready    chan struct{}
	shutdown chan struct{}
	once     sync.Once
	log      zerolog.Logger
}

// NewServer builds a server that serves every accepted connection with
// handler. A nil cfg uses DefaultConfig.
func NewServer(cfg *Config, handler ufio.AcceptHandler, opts ...ServerOption) (*Server, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.ThreadOptions = append([]ufio.Option(nil), cfg.ThreadOptions...)
	s := &Server{
		cfg:      &c,
		handler:  handler,
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
		log:      logging.Component("server"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.IOThreads <= 0 {
		return nil, fmt.Errorf("server: io threads must be positive, got %d", s.cfg.IOThreads)
	}
	if s.chooser == nil {
		s.chooser = func(scheds []ufio.IOScheduler) ufio.AcceptChooser {
			return ufio.NewRoundRobinChooser(scheds...)
		}
	}
	return s, nil
}

// NewServerFromConf builds a server from the server.* and ufio.* keys of conf.
func NewServerFromConf(conf *control.Conf, handler ufio.AcceptHandler, opts ...ServerOption) (*Server, error) {
	return NewServer(ConfigFromConf(conf), handler, opts...)
}

// Ready is closed once the server is listening and its threads run.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Port returns the bound port. Valid after Ready is closed.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Threads returns the running IO threads. Valid after Ready is closed.
func (s *Server) Threads() []*ufio.IOThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ufio.IOThread(nil), s.threads...)
}

// Shutdown asks Run to stop the IO threads and return. Safe to call more
// than once and from any goroutine.
func (s *Server) Shutdown() {
	s.once.Do(func() { close(s.shutdown) })
}
