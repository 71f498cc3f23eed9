package control

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}

func TestConfManagerReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ufio.toml")
	writeConf(t, path, "[ufio]\nmax_fds = 100\n")

	m := NewConfManager()
	conf, err := m.AddConf("ufio", path)
	require.NoError(t, err)
	assert.Equal(t, 100, conf.GetInt(KeyMaxFds, 0))
	assert.Same(t, conf, m.GetConf("ufio"))

	var notified []string
	m.OnReload(func(c *Conf) { notified = append(notified, c.Name()) })

	names, err := m.Reload()
	require.NoError(t, err)
	assert.Empty(t, names)

	// a different size is detected regardless of mtime granularity
	writeConf(t, path, "[ufio]\nmax_fds = 100000\n")
	names, err = m.Reload()
	require.NoError(t, err)
	assert.Equal(t, []string{"ufio"}, names)
	assert.Equal(t, []string{"ufio"}, notified)
	assert.Equal(t, 100000, conf.GetInt(KeyMaxFds, 0))
}

func TestConfManagerReloadErrorKeepsValues(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	bad := filepath.Join(dir, "bad.toml")
	writeConf(t, good, "a = 1\n")
	writeConf(t, bad, "b = 2\n")

	m := NewConfManager()
	_, err := m.AddConf("good", good)
	require.NoError(t, err)
	badConf, err := m.AddConf("bad", bad)
	require.NoError(t, err)

	writeConf(t, bad, "b = = broken\n")
	require.NoError(t, os.Remove(good))

	_, err = m.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "good.toml")
	assert.Contains(t, err.Error(), "bad.toml")
	assert.Equal(t, 2, badConf.GetInt("b", 0))
}

func TestConfManagerChildConf(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	writeConf(t, base, "[server]\nport = 9000\nio_threads = 4\n")
	over := filepath.Join(dir, "over.toml")
	writeConf(t, over, "[server]\nport = 9100\n")

	m := NewConfManager()
	_, err := m.AddConf("base", base)
	require.NoError(t, err)
	child, err := m.AddChildConf("over", over, "base")
	require.NoError(t, err)
	assert.Equal(t, 9100, child.GetInt(KeyPort, 0))
	assert.Equal(t, 4, child.GetInt(KeyIOThreads, 0))

	_, err = m.AddChildConf("orphan", over, "nope")
	assert.ErrorIs(t, err, ErrUnknownConf)

	mem, err := m.AddConf("memory", "")
	require.NoError(t, err)
	mem.Set("k", "v")
	names, err := m.Reload()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestConfManagerWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watch.toml")
	writeConf(t, path, "x = 1\n")

	mock := clock.NewMock()
	m := NewConfManagerWithClock(mock)
	conf, err := m.AddConf("watch", path)
	require.NoError(t, err)

	reloaded := make(chan struct{}, 1)
	m.OnReload(func(*Conf) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	watchErr := make(chan error, 1)
	go func() { watchErr <- m.Watch(ctx, time.Second) }()

	writeConf(t, path, "x = 22\n")
	// the ticker may not be registered yet; keep advancing until it fires
	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		mock.Add(time.Second)
		select {
		case <-reloaded:
			done = true
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("watch did not reload")
		}
	}
	assert.Equal(t, 22, conf.GetInt("x", 0))

	cancel()
	assert.ErrorIs(t, <-watchErr, context.Canceled)
}

func TestConfManagerConcurrentReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "race.toml")
	writeConf(t, path, "n = 0\n")

	m := NewConfManager()
	conf, err := m.AddConf("race", path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// a reload may catch a half written file; only the final
			// state matters here
			for i := 0; i < 50; i++ {
				_, _ = m.Reload()
			}
		}()
	}
	for i := 1; i <= 20; i++ {
		writeConf(t, path, fmt.Sprintf("n = %d\n", i*100))
	}
	wg.Wait()

	// a new size guarantees the change is seen
	writeConf(t, path, "n = 123456\n")
	_, err = m.Reload()
	require.NoError(t, err)
	assert.Equal(t, 123456, conf.GetInt("n", 0))
}
