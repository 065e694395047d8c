// Package schedule emits events on cron schedules.
package schedule

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/emit"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/metrics"
)

// Scheduler checks every schedule once per minute and emits the ones that
// are due. Schedules default to system:tick with an event.Tick payload; any
// other event type receives the schedule's data map as its payload.
type Scheduler struct {
	bus       emit.Emitter
	schedules atomic.Pointer[[]config.ScheduleDef]
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Scheduler for defs.
func New(bus emit.Emitter, defs []config.ScheduleDef, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{bus: bus, log: log.With("component", "schedule"), now: time.Now}
	s.Swap(defs)
	return s
}

// Swap replaces the schedules (used on hot-reload).
func (s *Scheduler) Swap(defs []config.ScheduleDef) {
	cp := append([]config.ScheduleDef(nil), defs...)
	s.schedules.Store(&cp)
}

// Len returns the number of configured schedules.
func (s *Scheduler) Len() int { return len(*s.schedules.Load()) }

// Run ticks at the start of every minute until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := s.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Tick(ctx, next)
		}
	}
}

// Tick emits every enabled schedule due at the minute containing at and
// returns how many fired.
func (s *Scheduler) Tick(ctx context.Context, at time.Time) int {
	at = at.Truncate(time.Minute)
	gron := gronx.New()
	fired := 0
	for _, def := range *s.schedules.Load() {
		if !def.IsEnabled() {
			continue
		}
		due, err := gron.IsDue(def.Cron, at)
		if err != nil {
			s.log.Warn("invalid schedule", "schedule_id", def.ID, "cron", def.Cron, "err", err)
			continue
		}
		if !due {
			continue
		}

		t := event.SystemTick
		var data any = event.Tick{Schedule: def.ID, At: at.UTC(), Data: def.Data}
		if def.EventType != "" && event.Type(def.EventType) != event.SystemTick {
			t = event.Type(def.EventType)
			data = def.Data
		}
		md := event.Metadata{Source: "schedule:" + def.ID}
		if _, err := s.bus.Emit(ctx, t, data, md); err != nil {
			s.log.Error("scheduled emit failed", "schedule_id", def.ID, "event_type", t, "err", err)
			continue
		}
		metrics.SchedulesTriggered.WithLabelValues(def.ID).Inc()
		fired++
	}
	return fired
}
