package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, maxWorkers, queueSize int) *GoroutinePool {
	t.Helper()
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  maxWorkers,
		QueueSize:   queueSize,
		IdleTimeout: time.Second,
	})
	t.Cleanup(p.Close)
	return p
}

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := newTestPool(t, 4, 16)

	var done atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), func(context.Context) error {
			defer wg.Done()
			done.Add(1)
			return nil
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int32(10), done.Load())
	stats := p.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Completed)
}

func TestPool_SubmitWaitReturnsTaskError(t *testing.T) {
	p := newTestPool(t, 2, 4)
	boom := errors.New("boom")

	err := p.SubmitWait(context.Background(), func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestPool_SubmitWaitHonorsContext(t *testing.T) {
	p := newTestPool(t, 1, 1)

	// Occupy the single worker.
	block := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		<-block
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.SubmitWait(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
}

func TestPool_RecoverFromPanic(t *testing.T) {
	p := newTestPool(t, 2, 4)

	err := p.SubmitWait(context.Background(), func(context.Context) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panicked")

	// Pool still works afterwards.
	err = p.SubmitWait(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestPool_ConcurrencyBoundedByMaxWorkers(t *testing.T) {
	p := newTestPool(t, 3, 64)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return nil
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPool_RejectsWhenSaturated(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1, IdleTimeout: time.Second})
	t.Cleanup(p.Close)

	block := make(chan struct{})
	defer close(block)

	blocker := func(context.Context) error {
		<-block
		return nil
	}
	// Fill the worker and the queue, then overflow.
	require.NoError(t, p.Submit(context.Background(), blocker))

	sawRejection := false
	for i := 0; i < 10; i++ {
		if err := p.Submit(context.Background(), blocker); errors.Is(err, ErrPoolFull) {
			sawRejection = true
			break
		}
	}
	assert.True(t, sawRejection)
	assert.Greater(t, p.Stats().Rejected, int64(0))
}

func TestPool_SubmitAfterCloseFails(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	p.Close()

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)

	// Close is idempotent.
	p.Close()
}

func TestPool_ConfigFallbacks(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{})
	t.Cleanup(p.Close)

	def := DefaultGoroutinePoolConfig()
	assert.Equal(t, def.MaxWorkers, p.maxWorkers)
	assert.Equal(t, def.QueueSize, cap(p.queue))
	assert.Equal(t, def.IdleTimeout, p.idleTimeout)
}
