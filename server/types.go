//go:build linux
// +build linux

// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"runtime"
	"time"

	"github.com/vmamidi/UserFiber/control"
	"github.com/vmamidi/UserFiber/ufio"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr      string        // IPv4 bind address, "" for any
	Port            int           // 0 picks an ephemeral port
	IOThreads       int           // threads serving connections, the first also accepts
	Backlog         int           // listen backlog, 0 = ufio.DefaultAcceptBacklog
	ShutdownTimeout time.Duration // how long Run waits for IO threads after Shutdown
	ThreadOptions   []ufio.Option // applied to every IO thread
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      "0.0.0.0",
		Port:            9000,
		IOThreads:       runtime.NumCPU(),
		Backlog:         ufio.DefaultAcceptBacklog,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConfigFromConf reads the server.* and ufio.* keys of conf over the defaults.
func ConfigFromConf(conf *control.Conf) *Config {
	cfg := DefaultConfig()
	if conf == nil {
		return cfg
	}
	cfg.ListenAddr = conf.GetString(control.KeyListenAddr, cfg.ListenAddr)
	cfg.Port = conf.GetInt(control.KeyPort, cfg.Port)
	cfg.IOThreads = conf.GetInt(control.KeyIOThreads, cfg.IOThreads)
	cfg.Backlog = conf.GetInt(control.KeyAcceptBacklog, cfg.Backlog)
	cfg.ThreadOptions = ufio.OptionsFromConf(conf)
	return cfg
}
