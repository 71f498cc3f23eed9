//go:build linux
// +build linux

// File: ufio/options.go
// Author: momentics <momentics@gmail.com>
//
// Functional options for IO threads and their schedulers.

package ufio

import (
	"github.com/benbjohnson/clock"

	"github.com/vmamidi/UserFiber/control"
	"github.com/vmamidi/UserFiber/core/concurrency"
)

const (
	// DefaultMaxFds bounds the descriptors one scheduler tracks.
	DefaultMaxFds = 128*1024 - 1
	// DefaultSleepPoolSize is the number of preallocated sleep entries.
	DefaultSleepPoolSize = 4096
	// DefaultConnPoolMaxIdle bounds idle pooled connections per address.
	DefaultConnPoolMaxIdle = 16
	// DefaultMaxEvents is the epoll_wait batch size.
	DefaultMaxEvents = 1024
)

// Options configures an IO thread and its EpollScheduler.
type Options struct {
	MaxFds          int
	MaxEvents       int
	SleepPoolSize   int
	ConnPoolMaxIdle int
	InboxSize       int
	CPU             int // -1 leaves the thread unpinned
	Clock           clock.Clock
	Metrics         *control.MetricsRegistry
	Probes          *control.DebugProbes
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		MaxFds:          DefaultMaxFds,
		MaxEvents:       DefaultMaxEvents,
		SleepPoolSize:   DefaultSleepPoolSize,
		ConnPoolMaxIdle: DefaultConnPoolMaxIdle,
		InboxSize:       concurrency.DefaultInboxSize,
		CPU:             -1,
		Clock:           clock.New(),
	}
}

func resolveOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxFds <= 0 {
		o.MaxFds = DefaultMaxFds
	}
	if o.MaxEvents <= 0 {
		o.MaxEvents = DefaultMaxEvents
	}
	if o.MaxEvents > o.MaxFds {
		o.MaxEvents = o.MaxFds
	}
	if o.SleepPoolSize < 0 {
		o.SleepPoolSize = 0
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// WithMaxFds sets the descriptor capacity of the scheduler.
func WithMaxFds(n int) Option { return func(o *Options) { o.MaxFds = n } }

// WithMaxEvents sets the epoll_wait batch size.
func WithMaxEvents(n int) Option { return func(o *Options) { o.MaxEvents = n } }

// WithSleepPoolSize sets how many sleep entries are preallocated.
func WithSleepPoolSize(n int) Option { return func(o *Options) { o.SleepPoolSize = n } }

// WithConnPoolMaxIdle bounds idle pooled connections per address.
func WithConnPoolMaxIdle(n int) Option { return func(o *Options) { o.ConnPoolMaxIdle = n } }

// WithInboxSize sets the capacity of the remote spawn inbox.
func WithInboxSize(n int) Option { return func(o *Options) { o.InboxSize = n } }

// WithCPU pins the IO thread to cpu.
func WithCPU(cpu int) Option { return func(o *Options) { o.CPU = cpu } }

// WithClock replaces the scheduler clock, mainly for tests.
func WithClock(c clock.Clock) Option { return func(o *Options) { o.Clock = c } }

// WithMetrics makes the scheduler publish its counters into reg.
func WithMetrics(reg *control.MetricsRegistry) Option {
	return func(o *Options) { o.Metrics = reg }
}

// WithProbes registers a stats probe for the scheduler in dp.
func WithProbes(dp *control.DebugProbes) Option {
	return func(o *Options) { o.Probes = dp }
}

// OptionsFromConf reads scheduler settings from conf and applies the
// process-wide socket buffer sizes.
func OptionsFromConf(conf *control.Conf) []Option {
	if conf == nil {
		return nil
	}
	SetSockBufSizes(conf.GetInt(control.KeyRecvSockBuf, 0), conf.GetInt(control.KeySendSockBuf, 0))
	return []Option{
		WithMaxFds(conf.GetInt(control.KeyMaxFds, DefaultMaxFds)),
		WithSleepPoolSize(conf.GetInt(control.KeySleepPoolSize, DefaultSleepPoolSize)),
		WithConnPoolMaxIdle(conf.GetInt(control.KeyConnPoolMaxIdle, DefaultConnPoolMaxIdle)),
	}
}
