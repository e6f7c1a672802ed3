package workqueue

import (
	"context"
	"sync"
	"sync/atomic"
)

// Job is one unit of background work.
type Job func(ctx context.Context)

// Config controls pool sizing and backpressure. OnPanic, when set, is
// called with the value recovered from a panicking job.
type Config struct {
	Workers    int
	QueueSize  int
	DropIfFull bool
	OnPanic    func(recovered any)
}

// Pool runs submitted jobs on a fixed set of worker goroutines.
// A nil *Pool is valid and drops every job.
type Pool struct {
	cfg       Config
	ch        chan Job
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	dropped   atomic.Uint64
	panics    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// New starts a pool. Workers and QueueSize are clamped to at least 1.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}

	p := &Pool{
		cfg:  cfg,
		ch:   make(chan Job, cfg.QueueSize),
		done: make(chan struct{}),
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.run()
	}

	return p
}

func (p *Pool) run() {
	defer p.wg.Done()

	for job := range p.ch {
		p.exec(job)
	}
}

func (p *Pool) exec(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			if p.cfg.OnPanic != nil {
				p.cfg.OnPanic(r)
			}
		}
	}()
	job(context.Background())
}

// Submit enqueues job. It reports false when the job was not accepted:
// the pool is closed, the queue is full in drop mode, or ctx ended first.
// An accepted job always runs, even when Close is called right after.
func (p *Pool) Submit(ctx context.Context, job Job) bool {
	if p == nil || job == nil {
		p.countDrop()
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		p.countDrop()
		return false
	}

	if p.cfg.DropIfFull {
		select {
		case p.ch <- job:
			return true
		default:
		}
		p.countDrop()
		return false
	}

	select {
	case p.ch <- job:
		return true
	case <-ctx.Done():
	case <-p.done:
	}
	p.countDrop()
	return false
}

func (p *Pool) countDrop() {
	if p != nil {
		p.dropped.Add(1)
	}
}

// Close stops accepting jobs, runs what is already queued and waits for
// the workers to exit. It is safe to call more than once.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)

		// Blocked submitters see done and release their read locks.
		p.mu.Lock()
		close(p.ch)
		p.mu.Unlock()

		p.wg.Wait()
	})
}

// Dropped returns the number of jobs that were not accepted.
func (p *Pool) Dropped() uint64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}

// Panics returns the number of jobs that panicked.
func (p *Pool) Panics() uint64 {
	if p == nil {
		return 0
	}
	return p.panics.Load()
}
