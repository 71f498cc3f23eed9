//go:build linux
// +build linux

// File: server/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Startup, accept fiber and graceful shutdown.

package server

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/vmamidi/UserFiber/affinity"
	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/ufio"
)

// ErrShutdownTimeout reports IO threads still running after ShutdownTimeout.
var ErrShutdownTimeout = errors.New("server: shutdown timed out")

// Run listens, starts the IO threads and serves until ctx is done, Shutdown
// is called or the accept loop fails. It returns the combined errors of the
// accept loop and the IO threads.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	lfd, err := ufio.SetupConnectionToAccept(s.cfg.ListenAddr, s.cfg.Port, s.cfg.Backlog, true)
	if err != nil {
		return err
	}
	port, err := ufio.LocalPort(lfd)
	if err != nil {
		unix.Close(lfd)
		return err
	}

	threads, err := s.startThreads()
	if err != nil {
		unix.Close(lfd)
		return err
	}
	scheds := make([]ufio.IOScheduler, len(threads))
	for i, th := range threads {
		scheds[i] = th.Scheduler()
	}
	chooser := s.chooser(scheds)

	acceptor := threads[0]
	acceptErr := make(chan error, 1)
	var acceptStarted atomic.Bool
	err = acceptor.Spawn(func(f api.Fiber) {
		acceptStarted.Store(true)
		l := ufio.NewHandle(f, lfd)
		defer l.Close()
		if !l.IsSetup(true) {
			acceptErr <- api.ErrBadFd
			return
		}
		acceptErr <- l.Accept(chooser, s.handler, s.args)
	})
	if err != nil {
		unix.Close(lfd)
		return multierr.Append(err, stopAll(threads))
	}

	s.mu.Lock()
	s.threads = threads
	s.port = port
	s.mu.Unlock()
	close(s.ready)
	s.log.Info().
		Str("addr", s.cfg.ListenAddr).
		Int("port", port).
		Int("threads", len(threads)).
		Msg("server listening")

	var acceptRes, stopRes error
	acceptDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(acceptDone)
		select {
		case err := <-acceptErr:
			if !errors.Is(err, api.ErrClosed) {
				acceptRes = err
			}
		case <-acceptor.Done():
		}
		return acceptRes
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.shutdown:
		case <-acceptDone:
			s.log.Warn().Err(acceptRes).Msg("accept loop ended")
		}
		stopRes = s.stop(threads)
		return stopRes
	})
	_ = g.Wait()
	// the accept fiber owns lfd once it ran; threads that timed out may
	// still run it
	if !acceptStarted.Load() && !errors.Is(stopRes, ErrShutdownTimeout) {
		_ = unix.Close(lfd)
	}
	return multierr.Combine(acceptRes, stopRes)
}

func (s *Server) startThreads() ([]*ufio.IOThread, error) {
	threads := make([]*ufio.IOThread, 0, s.cfg.IOThreads)
	for i := 0; i < s.cfg.IOThreads; i++ {
		opts := s.cfg.ThreadOptions
		if s.pin {
			cpu, err := affinity.Spread(i)
			if err != nil {
				return nil, multierr.Append(err, stopAll(threads))
			}
			opts = append(opts[:len(opts):len(opts)], ufio.WithCPU(cpu))
		}
		th, err := ufio.CreateIOThread(nil, opts...)
		if err != nil {
			return nil, multierr.Append(err, stopAll(threads))
		}
		threads = append(threads, th)
	}
	return threads, nil
}

func (s *Server) stop(threads []*ufio.IOThread) error {
	done := make(chan error, 1)
	go func() { done <- stopAll(threads) }()
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	select {
	case err := <-done:
		s.log.Info().Msg("server stopped")
		return err
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// stopAll stops every thread and waits for them to exit.
func stopAll(threads []*ufio.IOThread) error {
	for _, th := range threads {
		th.Stop()
	}
	var err error
	for _, th := range threads {
		err = multierr.Append(err, th.Wait())
	}
	return err
}
