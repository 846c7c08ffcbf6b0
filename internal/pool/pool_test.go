package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokeescape/pokeescape-server/internal/metrics"
)

func queuedGauge(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "pokeescape_pool_queued_tasks" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("queued gauge not registered")
	return 0
}

func TestNewRejectsZeroWorkers(t *testing.T) {
	p, err := New(0, nil, nil)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrZeroWorkers)
}

func TestExecuteRunsAllTasks(t *testing.T) {
	p, err := New(4, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Size())

	var count atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(100), count.Load())

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestConcurrencyBoundedByWorkers(t *testing.T) {
	const workers = 3
	p, err := New(workers, nil, nil)
	require.NoError(t, err)

	release := make(chan struct{})
	var running, peak atomic.Int64
	var wg sync.WaitGroup

	for range workers + 2 {
		wg.Add(1)
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}))
	}

	// The extra tasks sit in the queue rather than being rejected.
	require.Eventually(t, func() bool { return running.Load() == workers }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, p.Queued())

	close(release)
	wg.Wait()
	assert.Equal(t, int64(workers), peak.Load())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	p, err := New(1, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.Execute(func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Execute(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestExecuteAfterShutdownFails(t *testing.T) {
	p, err := New(2, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	assert.ErrorIs(t, p.Execute(func() {}), ErrShutdown)
}

func TestQueuedGaugeNeverNegative(t *testing.T) {
	m := metrics.New()
	p, err := New(4, nil, m)
	require.NoError(t, err)

	var mu sync.Mutex
	lowest := 0.0
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			v := queuedGauge(t, m)
			mu.Lock()
			lowest = min(lowest, v)
			mu.Unlock()
		}))
	}
	wg.Wait()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Equal(t, 0.0, lowest)
	assert.Equal(t, 0.0, queuedGauge(t, m))

	assert.ErrorIs(t, p.Execute(func() {}), ErrShutdown)
	assert.Equal(t, 0.0, queuedGauge(t, m), "refused task must not stay counted")
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	p, err := New(1, nil, nil)
	require.NoError(t, err)

	var count atomic.Int64
	for range 10 {
		require.NoError(t, p.Execute(func() {
			time.Sleep(time.Millisecond)
			count.Add(1)
		}))
	}
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int64(10), count.Load())
}

func TestShutdownTimesOutOnLongTask(t *testing.T) {
	p, err := New(1, nil, nil)
	require.NoError(t, err)

	release := make(chan struct{})
	require.NoError(t, p.Execute(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}
