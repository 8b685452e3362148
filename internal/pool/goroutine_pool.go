// Package pool provides a bounded goroutine pool used by the workflow
// engine to cap concurrent node executions.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool queue is full")
)

// Task is one unit of work. The pool passes through the context given at
// submission time.
type Task func(ctx context.Context) error

// GoroutinePoolConfig configures a pool.
type GoroutinePoolConfig struct {
	MaxWorkers  int           `json:"max_workers" yaml:"max_workers"`
	QueueSize   int           `json:"queue_size" yaml:"queue_size"`
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// DefaultGoroutinePoolConfig returns sensible defaults.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers:  64,
		QueueSize:   256,
		IdleTimeout: time.Minute,
	}
}

// GoroutinePool runs submitted tasks on at most MaxWorkers goroutines.
// Workers are spawned on demand and reaped after IdleTimeout without work.
type GoroutinePool struct {
	maxWorkers  int
	idleTimeout time.Duration
	queue       chan job

	workers atomic.Int32
	active  atomic.Int32
	closed  atomic.Bool
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

type job struct {
	ctx    context.Context
	task   Task
	result chan<- error // nil for fire-and-forget submissions
}

// NewGoroutinePool creates a pool from config. Non-positive fields fall
// back to defaults.
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	def := DefaultGoroutinePoolConfig()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = def.MaxWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	return &GoroutinePool{
		maxWorkers:  config.MaxWorkers,
		idleTimeout: config.IdleTimeout,
		queue:       make(chan job, config.QueueSize),
	}
}

// Submit enqueues a task without waiting for its result. It returns
// ErrPoolFull when the queue is saturated and no worker slot is free.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	return p.enqueue(job{ctx: ctx, task: task})
}

// SubmitWait enqueues a task and blocks until it finishes or ctx is done.
func (p *GoroutinePool) SubmitWait(ctx context.Context, task Task) error {
	result := make(chan error, 1)
	if err := p.enqueue(job{ctx: ctx, task: task, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *GoroutinePool) enqueue(j job) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	select {
	case p.queue <- j:
		p.spawnIfNeeded()
		return nil
	default:
	}

	// Queue saturated: a fresh worker may drain it.
	if p.spawnIfNeeded() {
		select {
		case p.queue <- j:
			return nil
		default:
		}
	}
	p.rejected.Add(1)
	return ErrPoolFull
}

// spawnIfNeeded starts a worker when under the cap, reporting whether one
// was started.
func (p *GoroutinePool) spawnIfNeeded() bool {
	for {
		n := p.workers.Load()
		if n >= int32(p.maxWorkers) {
			return false
		}
		if p.workers.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.active.Add(1)
			err := p.run(j)
			p.active.Add(-1)

			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			if j.result != nil {
				j.result <- err
			}
			idle.Reset(p.idleTimeout)

		case <-idle.C:
			// Keep one worker alive so a quiet pool stays responsive.
			if p.workers.Load() > 1 {
				return
			}
			idle.Reset(p.idleTimeout)
		}
	}
}

// run executes a task, converting a panic into an error so one bad task
// cannot take the worker down.
func (p *GoroutinePool) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return j.task(j.ctx)
}

// Close stops accepting tasks and waits for queued work to drain.
func (p *GoroutinePool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.queue)
	p.wg.Wait()
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Stats returns a snapshot of the pool's counters.
func (p *GoroutinePool) Stats() Stats {
	return Stats{
		Workers:   int(p.workers.Load()),
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
