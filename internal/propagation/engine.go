// Package propagation runs propagation rules against every event on the bus.
package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/opscore/internal/bus"
	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/metrics"
	"github.com/gyaneshwarpardhi/opscore/internal/rules"
)

// RuleInfo is the diagnostic view of a rule.
type RuleInfo struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Enabled     bool         `json:"enabled"`
	EventTypes  []event.Type `json:"eventTypes"`
	Effects     int          `json:"effects"`
}

// EventResult is the outcome of running the rules for a single event.
type EventResult struct {
	EventID         string           `json:"event_id"`
	DurationMs      int64            `json:"duration_ms"`
	RulesMatched    []string         `json:"rules_matched"`
	EffectsExecuted []*effect.Result `json:"effects_executed"`
}

// Subscriber is the part of the bus the engine attaches to.
type Subscriber interface {
	Subscribe(t event.Type, h bus.Handler) bus.Unsubscribe
}

// state pairs a rule set with the live enabled flag of each rule.
type state struct {
	set     *rules.Set
	enabled map[string]*atomic.Bool
}

// Engine evaluates rules for each event it receives.
type Engine struct {
	state atomic.Pointer[state]
	log   *slog.Logger
}

// New creates an Engine over set.
func New(set *rules.Set, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{log: log.With("component", "propagation")}
	e.SwapRules(set)
	return e
}

// SwapRules atomically replaces the rule set (used on hot-reload). Enabled
// flags are taken from the new definitions.
func (e *Engine) SwapRules(set *rules.Set) {
	st := &state{set: set, enabled: make(map[string]*atomic.Bool, set.Len())}
	for _, r := range set.Rules() {
		flag := &atomic.Bool{}
		flag.Store(r.Enabled)
		st.enabled[r.ID] = flag
	}
	e.state.Store(st)
}

// Rules lists every rule with its current enabled flag, in definition order.
func (e *Engine) Rules() []RuleInfo {
	st := e.state.Load()
	out := make([]RuleInfo, 0, st.set.Len())
	for _, r := range st.set.Rules() {
		out = append(out, RuleInfo{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Enabled:     st.enabled[r.ID].Load(),
			EventTypes:  r.EventTypes,
			Effects:     len(r.Effects),
		})
	}
	return out
}

// EnableRule turns a rule on. It reports false, and does nothing, for an unknown id.
func (e *Engine) EnableRule(id string) bool { return e.setEnabled(id, true) }

// DisableRule turns a rule off. It reports false, and does nothing, for an unknown id.
func (e *Engine) DisableRule(id string) bool { return e.setEnabled(id, false) }

func (e *Engine) setEnabled(id string, on bool) bool {
	flag, ok := e.state.Load().enabled[id]
	if !ok {
		e.log.Debug("toggle of unknown rule ignored", "rule_id", id, "enabled", on)
		return false
	}
	if flag.Swap(on) != on {
		e.log.Info("rule toggled", "rule_id", id, "enabled", on)
	}
	return true
}

// Attach subscribes the engine to every event on b.
func (e *Engine) Attach(b Subscriber) bus.Unsubscribe {
	return b.Subscribe(event.All, e.OnEvent)
}

// OnEvent is the bus handler. Rule and effect failures are logged here and
// never returned, so the emitter is unaffected.
func (e *Engine) OnEvent(ctx context.Context, ev event.Event) error {
	e.Process(ctx, ev)
	return nil
}

// Process runs every enabled, matching rule for ev. A rule stops at its
// first failing effect; the remaining rules still run.
func (e *Engine) Process(ctx context.Context, ev event.Event) *EventResult {
	start := time.Now()
	st := e.state.Load()
	view := event.NewView(ev)
	result := &EventResult{EventID: ev.ID}

	for _, r := range st.set.Rules() {
		if !st.enabled[r.ID].Load() {
			continue
		}
		ok, err := r.Matches(view)
		if err != nil {
			e.log.Warn("rule condition failed", "rule_id", r.ID, "event_id", ev.ID, "event_type", ev.Type, "err", err)
			continue
		}
		if !ok {
			continue
		}
		result.RulesMatched = append(result.RulesMatched, r.ID)
		metrics.RulesFired.WithLabelValues(r.ID).Inc()

		for _, eff := range r.Effects {
			res := e.runEffect(ctx, r, eff, view)
			result.EffectsExecuted = append(result.EffectsExecuted, res)
			if !res.Success {
				e.log.Error("effect failed",
					"rule_id", r.ID,
					"effect_id", eff.ID,
					"effect_type", eff.Type,
					"event_id", ev.ID,
					"event_type", ev.Type,
					"err", res.Message)
				break
			}
			e.log.Debug("effect executed", "rule_id", r.ID, "effect_id", eff.ID, "msg", res.Message)
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

func (e *Engine) runEffect(ctx context.Context, r *rules.Rule, eff rules.Effect, view *event.View) (res *effect.Result) {
	fail := func(err error) *effect.Result {
		metrics.EffectsExecuted.WithLabelValues(eff.Type, "error").Inc()
		return &effect.Result{EffectID: eff.ID, Type: eff.Type, Success: false, Message: err.Error()}
	}
	defer func() {
		if p := recover(); p != nil {
			res = fail(fmt.Errorf("panic: %v", p))
		}
	}()

	params, err := effect.ResolveParams(eff.Params, view)
	if err != nil {
		return fail(err)
	}
	res, err = eff.Executor.Execute(ctx, effect.Call{RuleID: r.ID, EffectID: eff.ID, Params: params, Event: view})
	if err != nil {
		return fail(err)
	}
	if res == nil {
		res = &effect.Result{EffectID: eff.ID, Type: eff.Type, Success: true}
	}
	status := "success"
	if !res.Success {
		status = "error"
	}
	metrics.EffectsExecuted.WithLabelValues(eff.Type, status).Inc()
	return res
}
