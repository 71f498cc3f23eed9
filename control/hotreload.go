// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Named configuration files with change detection and reload hooks.

package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/vmamidi/UserFiber/internal/logging"
)

// ErrUnknownConf is returned when a parent configuration is not registered.
var ErrUnknownConf = errors.New("control: unknown configuration")

type confFile struct {
	conf *Conf
	path string // absolute

	mu    sync.Mutex // serializes reloads of this file
	mtime time.Time
	size  int64
}

// ConfManager owns named configurations loaded from TOML files. Reload
// re-reads files whose modification time or size changed and notifies the
// registered hooks with the refreshed configuration. Watch reloads on file
// notifications where the platform has them and polls otherwise.
type ConfManager struct {
	mu     sync.RWMutex
	files  map[string]*confFile
	hooks  []func(*Conf)
	clock  clock.Clock
	notify *notifier
}

// NewConfManager returns an empty manager using the wall clock.
func NewConfManager() *ConfManager {
	return NewConfManagerWithClock(clock.New())
}

// NewConfManagerWithClock returns an empty manager driven by clk.
func NewConfManagerWithClock(clk clock.Clock) *ConfManager {
	return &ConfManager{
		files: make(map[string]*confFile),
		clock: clk,
	}
}

// AddConf loads path as a root configuration called name. An empty path
// registers an in-memory configuration.
func (m *ConfManager) AddConf(name, path string) (*Conf, error) {
	return m.add(name, path, nil)
}

// AddChildConf loads path as a configuration whose lookups fall back to the
// already registered parent.
func (m *ConfManager) AddChildConf(name, path, parent string) (*Conf, error) {
	p := m.GetConf(parent)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConf, parent)
	}
	return m.add(name, path, p)
}

func (m *ConfManager) add(name, path string, parent *Conf) (*Conf, error) {
	cf := &confFile{conf: NewConf(name, parent)}
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		cf.path = abs
		if err := cf.load(); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	m.files[name] = cf
	n := m.notify
	m.mu.Unlock()
	if n != nil && cf.path != "" {
		if err := n.Add(cf.path); err != nil {
			log := logging.Component("control")
			log.Warn().Err(err).Str("path", cf.path).Msg("cannot watch configuration")
		}
	}
	return cf.conf, nil
}

// GetConf returns the configuration called name, or nil.
func (m *ConfManager) GetConf(name string) *Conf {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cf, ok := m.files[name]; ok {
		return cf.conf
	}
	return nil
}

// OnReload registers fn to run after a configuration is reloaded.
func (m *ConfManager) OnReload(fn func(*Conf)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Reload re-reads every file that changed since it was last loaded and
// returns the names reloaded. Errors of individual files are combined; a
// file that fails to parse keeps its previous values.
func (m *ConfManager) Reload() ([]string, error) {
	return m.reload(func(*confFile) bool { return true }, false)
}

// reloadPaths re-reads the files at paths whether or not their size or
// modification time moved.
func (m *ConfManager) reloadPaths(paths []string) ([]string, error) {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return m.reload(func(cf *confFile) bool { return set[cf.path] }, true)
}

func (m *ConfManager) reload(match func(*confFile) bool, force bool) ([]string, error) {
	m.mu.RLock()
	files := make([]*confFile, 0, len(m.files))
	for _, cf := range m.files {
		if cf.path != "" && match(cf) {
			files = append(files, cf)
		}
	}
	hooks := append([]func(*Conf){}, m.hooks...)
	m.mu.RUnlock()

	log := logging.Component("control")
	var (
		reloaded []string
		errs     error
	)
	for _, cf := range files {
		ok, err := cf.reload(force)
		if err != nil {
			log.Warn().Err(err).Str("conf", cf.conf.Name()).Msg("reload failed")
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		log.Info().Str("conf", cf.conf.Name()).Str("path", cf.path).Msg("configuration reloaded")
		reloaded = append(reloaded, cf.conf.Name())
		for _, fn := range hooks {
			fn(cf.conf)
		}
	}
	return reloaded, errs
}

// Watch reloads changed files until ctx is done. On Linux it reacts to
// inotify events on the files' directories; every interval it also polls,
// which is the only mechanism elsewhere. Reload failures are logged and
// watching continues.
func (m *ConfManager) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	log := logging.Component("control")

	var changes <-chan []string
	if n, err := m.startNotify(); err != nil {
		log.Debug().Err(err).Msg("file notifications unavailable, polling")
	} else {
		defer m.stopNotify(n)
		changes = n.Events()
	}

	t := m.clock.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case paths, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			_, _ = m.reloadPaths(paths) // failures are logged by reload
		case <-t.C:
			_, _ = m.Reload()
		}
	}
}

func (m *ConfManager) startNotify() (*notifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notify != nil {
		return nil, errors.New("control: already watching")
	}
	n, err := newNotifier()
	if err != nil {
		return nil, err
	}
	for _, cf := range m.files {
		if cf.path == "" {
			continue
		}
		if err := n.Add(cf.path); err != nil {
			n.Close()
			return nil, err
		}
	}
	m.notify = n
	return n, nil
}

func (m *ConfManager) stopNotify(n *notifier) {
	m.mu.Lock()
	m.notify = nil
	m.mu.Unlock()
	_ = n.Close()
}

// reload loads the file when forced or when its size or modification time
// changed, and reports whether it did.
func (cf *confFile) reload(force bool) (bool, error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if !force {
		changed, err := cf.changed()
		if err != nil || !changed {
			return false, err
		}
	}
	if err := cf.loadLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (cf *confFile) changed() (bool, error) {
	st, err := os.Stat(cf.path)
	if err != nil {
		return false, fmt.Errorf("config %s: %w", cf.path, err)
	}
	return !st.ModTime().Equal(cf.mtime) || st.Size() != cf.size, nil
}

func (cf *confFile) load() error {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.loadLocked()
}

func (cf *confFile) loadLocked() error {
	st, err := os.Stat(cf.path)
	if err != nil {
		return fmt.Errorf("config %s: %w", cf.path, err)
	}
	if err := cf.conf.LoadFile(cf.path); err != nil {
		return err
	}
	cf.mtime = st.ModTime()
	cf.size = st.Size()
	return nil
}

func logNotifyErr(err error) {
	log := logging.Component("control")
	log.Warn().Err(err).Msg("configuration notifications stopped")
}
