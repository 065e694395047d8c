package bus

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRecentCapacity = 100
	DefaultMaxDepth       = 16
)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for subscriber failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// WithRecentCapacity sets how many events RecentEvents can return.
// Non-positive values keep the default.
func WithRecentCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithHandlerTimeout gives every subscriber a context deadline of d.
// The handler still runs on the emitting goroutine; it must honor ctx for
// the timeout to bound the emit call. Zero disables the deadline.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d >= 0 {
			b.timeout = d
		}
	}
}

// WithMaxDepth limits how deeply handlers may emit nested events.
func WithMaxDepth(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxDepth = n
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bus) {
		if t != nil {
			b.tracer = t
		}
	}
}
