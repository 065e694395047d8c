// Package bus is the in-process publish/subscribe hub every other component
// builds on. Emit runs subscribers synchronously: exact-type subscribers in
// registration order, then wildcard subscribers in registration order, each
// awaited before the next.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/metrics"
)

var (
	ErrMissingType  = errors.New("event type is required")
	ErrWildcardEmit = errors.New("cannot emit the wildcard type")
	ErrChainTooDeep = errors.New("event chain too deep")
)

// Handler reacts to one event. A returned error (or a panic) is logged by the
// bus and never reaches the emitter.
type Handler func(ctx context.Context, ev event.Event) error

// Unsubscribe removes the subscription it was returned for. Safe to call more than once.
type Unsubscribe func()

type subscription struct {
	id      uint64
	typ     event.Type
	handler Handler
	removed atomic.Bool
}

// Bus is safe for concurrent use. The zero value is not usable; call New.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	byType   map[event.Type][]*subscription
	wildcard []*subscription
	recent   *ring

	log      *slog.Logger
	tracer   trace.Tracer
	capacity int
	timeout  time.Duration
	maxDepth int
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		byType:   make(map[event.Type][]*subscription),
		log:      slog.Default(),
		tracer:   otel.Tracer("github.com/gyaneshwarpardhi/opscore/internal/bus"),
		capacity: DefaultRecentCapacity,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "bus")
	b.recent = newRing(b.capacity)
	return b
}

// Subscribe registers h for every future event of type t, or for every event
// when t is event.All.
func (b *Bus) Subscribe(t event.Type, h Handler) Unsubscribe {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	s := &subscription{id: b.nextID, typ: t, handler: h}
	if t == event.All {
		b.wildcard = append(b.wildcard, s)
	} else {
		b.byType[t] = append(b.byType[t], s)
	}
	b.mu.Unlock()
	metrics.Subscriptions.Inc()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(s) })
	}
}

// SubscribeAll registers a wildcard subscription.
func (b *Bus) SubscribeAll(h Handler) Unsubscribe {
	return b.Subscribe(event.All, h)
}

func (b *Bus) remove(s *subscription) {
	s.removed.Store(true)
	b.mu.Lock()
	defer b.mu.Unlock()
	drop := func(list []*subscription) []*subscription {
		return slices.DeleteFunc(list, func(x *subscription) bool { return x == s })
	}
	if s.typ == event.All {
		b.wildcard = drop(b.wildcard)
	} else {
		b.byType[s.typ] = drop(b.byType[s.typ])
		if len(b.byType[s.typ]) == 0 {
			delete(b.byType, s.typ)
		}
	}
	metrics.Subscriptions.Dec()
}

// Emit publishes an event and returns once every matching subscriber has
// returned. It fails only for malformed input; subscriber failures are logged
// and swallowed. Subscribers, the caller and RecentEvents each receive their
// own copy, so mutating one never changes what the others see.
func (b *Bus) Emit(ctx context.Context, t event.Type, data any, md event.Metadata) (event.Event, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.validate(t, data); err != nil {
		return event.Event{}, err
	}
	parent := chainFrom(ctx)
	if parent.depth >= b.maxDepth {
		metrics.EventsRejected.WithLabelValues("chain_depth").Inc()
		return event.Event{}, fmt.Errorf("%w: %s at depth %d", ErrChainTooDeep, t, parent.depth)
	}

	if md.CausationID == "" {
		md.CausationID = parent.eventID
	}
	// The bus owns its own copy; every subscriber and reader gets another.
	ev := event.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Data:      data,
		Metadata:  md,
		Timestamp: time.Now().UTC(),
	}.Clone()

	b.mu.Lock()
	b.recent.push(ev)
	subs := make([]*subscription, 0, len(b.byType[t])+len(b.wildcard))
	subs = append(subs, b.byType[t]...)
	subs = append(subs, b.wildcard...)
	b.mu.Unlock()

	metrics.EventsEmitted.WithLabelValues(string(t)).Inc()
	start := time.Now()

	ctx, span := b.tracer.Start(ctx, "bus.emit", trace.WithAttributes(
		attribute.String("event.type", string(t)),
		attribute.String("event.id", ev.ID),
		attribute.Int("bus.subscribers", len(subs)),
	))
	defer span.End()

	hctx := withChain(ctx, chain{depth: parent.depth + 1, eventID: ev.ID})
	for _, s := range subs {
		if s.removed.Load() {
			continue
		}
		if err := b.call(hctx, s, ev.Clone()); err != nil {
			metrics.SubscriberFailures.WithLabelValues(string(t)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "subscriber failed")
			b.log.Error("subscriber failed",
				"event_id", ev.ID,
				"event_type", t,
				"subscription", s.id,
				"err", err)
		}
	}

	metrics.EmitDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return ev.Clone(), nil
}

func (b *Bus) validate(t event.Type, data any) error {
	switch {
	case t == "":
		metrics.EventsRejected.WithLabelValues("missing_type").Inc()
		return ErrMissingType
	case t == event.All:
		metrics.EventsRejected.WithLabelValues("wildcard").Inc()
		return ErrWildcardEmit
	}
	if err := event.Check(t, data); err != nil {
		metrics.EventsRejected.WithLabelValues("payload").Inc()
		return err
	}
	return nil
}

func (b *Bus) call(ctx context.Context, s *subscription, ev event.Event) (err error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = s.handler(ctx, ev)
	if err == nil && b.timeout > 0 && ctx.Err() != nil {
		err = fmt.Errorf("handler exceeded %s: %w", b.timeout, ctx.Err())
	}
	return err
}

// RecentEvents returns up to limit of the most recently emitted events,
// newest first.
func (b *Bus) RecentEvents(limit int) []event.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.recent.latest(limit)
}

// RecentCapacity is the size of the recent-events buffer.
func (b *Bus) RecentCapacity() int {
	return b.recent.capacity()
}

// SubscriptionCount returns the number of live subscriptions, wildcard included.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.wildcard)
	for _, subs := range b.byType {
		n += len(subs)
	}
	return n
}
