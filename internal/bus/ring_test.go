package bus

import (
	"testing"

	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

func TestRingWrapsAround(t *testing.T) {
	r := newRing(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		r.push(event.Event{ID: id})
	}
	got := r.latest(10)
	want := []string{"e", "d", "c"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("latest[%d] = %q, want %q", i, got[i].ID, want[i])
		}
	}
}

func TestRingPartiallyFilled(t *testing.T) {
	r := newRing(4)
	r.push(event.Event{ID: "a"})
	r.push(event.Event{ID: "b"})
	got := r.latest(1)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("latest(1) = %v, want [b]", got)
	}
	if n := len(r.latest(-1)); n != 0 {
		t.Errorf("latest(-1) returned %d events", n)
	}
}

func TestRingZeroCapacity(t *testing.T) {
	r := newRing(0)
	r.push(event.Event{ID: "a"})
	if n := len(r.latest(5)); n != 0 {
		t.Errorf("zero-capacity ring returned %d events", n)
	}
}
