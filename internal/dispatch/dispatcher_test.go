package dispatch_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opscore/internal/dispatch"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type emitter struct {
	mu      sync.Mutex
	types   []event.Type
	started chan struct{}
	release chan struct{}
}

func (e *emitter) Emit(_ context.Context, t event.Type, _ any, _ event.Metadata) (event.Event, error) {
	if e.started != nil {
		e.started <- struct{}{}
		<-e.release
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, t)
	return event.Event{Type: t}, nil
}

func TestDrainEmitsEverythingQueued(t *testing.T) {
	em := &emitter{}
	d := dispatch.New(context.Background(), em, 3, 100, quiet)
	for range 50 {
		require.True(t, d.Submit(dispatch.Job{Type: event.LeadCreated}))
	}
	d.Drain()
	assert.Len(t, em.types, 50)
	assert.False(t, d.Submit(dispatch.Job{Type: event.LeadCreated}), "drained dispatcher rejects jobs")
	d.Drain()
}

func TestSubmitReportsFullQueue(t *testing.T) {
	em := &emitter{started: make(chan struct{}), release: make(chan struct{})}
	d := dispatch.New(context.Background(), em, 1, 1, quiet)

	require.True(t, d.Submit(dispatch.Job{Type: event.LeadCreated}))
	<-em.started // the only worker is now busy

	require.True(t, d.Submit(dispatch.Job{Type: event.LeadConverted}))
	assert.Equal(t, 1.0, d.QueueUtilization())
	assert.False(t, d.Submit(dispatch.Job{Type: event.InvoicePaid}))

	go func() {
		<-em.started
		close(em.release)
	}()
	em.release <- struct{}{}
	d.Drain()
	assert.Equal(t, []event.Type{event.LeadCreated, event.LeadConverted}, em.types)
	assert.Zero(t, d.QueueUtilization())
}
