//go:build linux
// +build linux

package affinity

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAllowedCPUs(t *testing.T) {
	cpus, err := AllowedCPUs()
	require.NoError(t, err)
	require.NotEmpty(t, cpus)
	for i := 1; i < len(cpus); i++ {
		assert.Less(t, cpus[i-1], cpus[i])
	}

	first, err := Spread(0)
	require.NoError(t, err)
	again, err := Spread(len(cpus))
	require.NoError(t, err)
	assert.Equal(t, cpus[0], first)
	assert.Equal(t, first, again)
}

func TestSetAffinityBindsThread(t *testing.T) {
	cpus, err := AllowedCPUs()
	require.NoError(t, err)
	target := cpus[len(cpus)-1]

	type result struct {
		err error
		set unix.CPUSet
	}
	ch := make(chan result, 1)
	go func() {
		// the thread exits with the goroutine, taking the binding with it
		runtime.LockOSThread()
		var r result
		if r.err = SetAffinity(target); r.err == nil {
			r.err = unix.SchedGetaffinity(0, &r.set)
		}
		ch <- r
	}()
	r := <-ch
	require.NoError(t, r.err)
	assert.Equal(t, 1, r.set.Count())
	assert.True(t, r.set.IsSet(target))
}
