package bus

import "github.com/gyaneshwarpardhi/opscore/internal/event"

// ring is a fixed-capacity FIFO of recent events. Not safe for concurrent use;
// the Bus guards it with its mutex.
type ring struct {
	buf   []event.Event
	start int // index of the oldest entry
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]event.Event, capacity)}
}

// push appends ev, overwriting the oldest entry when full.
func (r *ring) push(ev event.Event) {
	n := len(r.buf)
	if n == 0 {
		return
	}
	if r.size < n {
		r.buf[(r.start+r.size)%n] = ev
		r.size++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % n
}

// latest returns copies of up to limit entries, newest first.
func (r *ring) latest(limit int) []event.Event {
	if limit <= 0 || r.size == 0 {
		return []event.Event{}
	}
	if limit > r.size {
		limit = r.size
	}
	n := len(r.buf)
	out := make([]event.Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.buf[(r.start+r.size-1-i)%n].Clone()
	}
	return out
}

func (r *ring) capacity() int { return len(r.buf) }
