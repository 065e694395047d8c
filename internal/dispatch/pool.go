package dispatch

import (
	"context"
	"sync"
)

// pool is a fixed-size goroutine pool with a bounded input queue.
type pool[T any] struct {
	mu      sync.RWMutex
	closed  bool
	queue   chan T
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup
}

// newPool starts n goroutines reading from a queue of capacity depth.
func newPool[T any](ctx context.Context, n, depth int, fn func(context.Context, T)) *pool[T] {
	p := &pool[T]{
		queue:   make(chan T, depth),
		process: fn,
	}
	for range n {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *pool[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// submit enqueues without blocking. It returns false when the queue is full
// or the pool is draining.
func (p *pool[T]) submit(t T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// drain stops intake, lets workers finish what is queued and waits for them.
func (p *pool[T]) drain() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *pool[T]) queued() int { return len(p.queue) }
func (p *pool[T]) capacity() int { return cap(p.queue) }
