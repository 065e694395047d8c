// Package dispatch emits events in the background for callers that must
// not wait on subscribers, such as batch ingestion over HTTP.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/gyaneshwarpardhi/opscore/internal/effect/emit"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/metrics"
)

// Job is one event waiting to be emitted.
type Job struct {
	Type     event.Type
	Data     any
	Metadata event.Metadata
}

// Dispatcher feeds queued jobs to the bus from a worker pool. Ordering
// between jobs is not preserved once more than one worker runs.
type Dispatcher struct {
	pool *pool[Job]
	bus  emit.Emitter
	log  *slog.Logger
}

// New starts workers goroutines with a queue of depth jobs. Workers stop
// when ctx is cancelled or Drain is called.
func New(ctx context.Context, bus emit.Emitter, workers, depth int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{bus: bus, log: log.With("component", "dispatch")}
	d.pool = newPool(ctx, workers, depth, d.process)
	return d
}

func (d *Dispatcher) process(ctx context.Context, j Job) {
	defer metrics.QueueUtilization.Set(d.QueueUtilization())
	if _, err := d.bus.Emit(ctx, j.Type, j.Data, j.Metadata); err != nil {
		d.log.Warn("queued event rejected", "event_type", j.Type, "err", err)
	}
}

// Submit enqueues a job. Returns false if the queue is full.
func (d *Dispatcher) Submit(j Job) bool {
	if !d.pool.submit(j) {
		metrics.DispatchDropped.Inc()
		return false
	}
	metrics.DispatchQueued.Inc()
	metrics.QueueUtilization.Set(d.QueueUtilization())
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (d *Dispatcher) QueueUtilization() float64 {
	if d.pool.capacity() == 0 {
		return 0
	}
	return float64(d.pool.queued()) / float64(d.pool.capacity())
}

// Drain stops accepting jobs and waits until the queued ones are emitted.
func (d *Dispatcher) Drain() {
	d.pool.drain()
}
