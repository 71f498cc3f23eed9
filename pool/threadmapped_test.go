//go:build linux
// +build linux

package pool

import (
	"os"
	"os/exec"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmamidi/UserFiber/api"
	"github.com/vmamidi/UserFiber/core/concurrency"
)

// onThread runs fn on a fresh locked OS thread and returns its thread id.
// The thread exits with the goroutine, so its id is never reused by tests.
func onThread(fn func(tid api.ThreadID)) api.ThreadID {
	ch := make(chan api.ThreadID)
	go func() {
		runtime.LockOSThread()
		tid := concurrency.CurrentThreadID()
		fn(tid)
		ch <- tid
	}()
	return <-ch
}

func TestThreadMappedPoolGivesThreadsOwnPartitions(t *testing.T) {
	tp := NewThreadMappedPool[item](2, nil)

	var parts [2]int
	var objs [2]*item
	for i := 0; i < 2; i++ {
		onThread(func(tid api.ThreadID) {
			o := tp.Get()
			tp.Put(o)
			objs[i] = o
			parts[i] = tp.PartitionOf(tid)
		})
	}
	assert.NotEqual(t, parts[0], parts[1])
	assert.NotSame(t, objs[0], objs[1])
}

type owned struct {
	owner api.ThreadID
}

func TestThreadMappedPoolConcurrentThreadsStayInOwnPartition(t *testing.T) {
	const (
		threads = 2
		rounds  = 2000
	)
	tp := NewThreadMappedPool(threads, func() *owned {
		return &owned{owner: concurrency.CurrentThreadID()}
	})
	// keep the creator tag across recycling
	tp.SetRecycler(RecyclerFunc[owned](func(*owned) {}))

	var (
		ready, wg sync.WaitGroup
		start     = make(chan struct{})
		tids      [threads]api.ThreadID
		parts     [threads]int
		foreign   [threads]int
	)
	for i := 0; i < threads; i++ {
		ready.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runtime.LockOSThread()
			tid := concurrency.CurrentThreadID()
			tids[i] = tid
			ready.Done()
			<-start

			held := make([]*owned, 0, 4)
			for r := 0; r < rounds; r++ {
				for k := 0; k < cap(held); k++ {
					held = append(held, tp.Get())
				}
				for _, o := range held {
					if o.owner != tid {
						foreign[i]++
					}
					tp.Put(o)
				}
				held = held[:0]
			}
			parts[i] = tp.PartitionOf(tid)
			st := tp.StatsFor(tid)
			assert.Zero(t, st.InUse)
			assert.Equal(t, uint64(4), st.Created, "thread %d created beyond its working set", tid)
			// exits still locked, so the thread id is never reused
		}(i)
	}
	ready.Wait()
	close(start)
	wg.Wait()

	assert.NotEqual(t, tids[0], tids[1])
	assert.NotEqual(t, parts[0], parts[1])
	assert.Equal(t, [threads]int{}, foreign)
}

func TestThreadMappedPoolReleaseThread(t *testing.T) {
	tp := NewThreadMappedPool[item](1, nil)
	first := onThread(func(api.ThreadID) { tp.Put(tp.Get()) })
	require.True(t, tp.ReleaseThread(first))
	assert.False(t, tp.ReleaseThread(first))

	onThread(func(tid api.ThreadID) {
		assert.Equal(t, 0, tp.PartitionOf(tid))
		assert.Equal(t, 1, tp.StatsFor(tid).Free)
	})
}

const exhaustEnv = "UFIBER_POOL_EXHAUST"

func TestThreadMappedPoolExhaustionTerminates(t *testing.T) {
	if os.Getenv(exhaustEnv) == "1" {
		tp := NewThreadMappedPool[item](2, nil)
		for i := 0; i < 3; i++ {
			onThread(func(api.ThreadID) { tp.Put(tp.Get()) })
		}
		return
	}
	cmd := exec.Command(os.Args[0], "-test.run=^TestThreadMappedPoolExhaustionTerminates$")
	cmd.Env = append(os.Environ(), exhaustEnv+"=1")
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, "output: %s", out)
	assert.NotZero(t, exitErr.ExitCode())
	assert.Contains(t, string(out), "thread mapped pool exhausted")
}
