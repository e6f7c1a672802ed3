package audit

import (
	"context"

	"github.com/MrEthical07/authcore/internal/workqueue"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	OnPanic    func(recovered any)
}

// Dispatcher asynchronously forwards audit events to a sink on a single
// worker, so a sink observes events in submission order.
type Dispatcher struct {
	sink Sink
	pool *workqueue.Pool
}

// NewDispatcher returns nil when auditing is disabled. A nil Dispatcher
// accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	return &Dispatcher{
		sink: sink,
		pool: workqueue.New(workqueue.Config{
			Workers:    1,
			QueueSize:  cfg.BufferSize,
			DropIfFull: cfg.DropIfFull,
			OnPanic:    cfg.OnPanic,
		}),
	}
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.pool.Submit(ctx, func(ctx context.Context) {
		d.sink.Emit(ctx, event)
	})
}

// Close flushes queued events and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.pool.Close()
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.pool.Dropped()
}
