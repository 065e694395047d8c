package config

import (
	"fmt"
	"strings"

	"github.com/adhocore/gronx"

	"github.com/gyaneshwarpardhi/opscore/internal/condition"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

// Validate checks the config for:
//   - Required fields and sane tunables
//   - Duplicate IDs among agents, rules, effects within a rule, and schedules
//   - Unknown event types, unparsable conditions and invalid cron expressions
//
// Every problem is reported, not just the first. Effect types are checked
// later against the effect registry when rules are built.
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string
	addf := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		addf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	if cfg.Bus.RecentCapacity < 0 {
		addf("bus.recent_capacity must not be negative")
	}
	if cfg.Bus.HandlerTimeoutMs < 0 {
		addf("bus.handler_timeout_ms must not be negative")
	}
	if cfg.Bus.MaxDepth < 0 {
		addf("bus.max_depth must not be negative")
	}
	if cfg.Dispatch.Workers < 0 || cfg.Dispatch.QueueDepth < 0 {
		addf("dispatch.workers and dispatch.queue_depth must not be negative")
	}
	if r := cfg.Tracing.SampleRatio; r < 0 || r > 1 {
		addf("tracing.sample_ratio must be within [0, 1], got %v", r)
	}

	agentIDs := make(map[string]int)
	for i, a := range cfg.Agents {
		if a.ID == "" {
			addf("agents[%d]: id is required", i)
			continue
		}
		if prev, ok := agentIDs[a.ID]; ok {
			addf("duplicate agent id %q (agents[%d] and agents[%d])", a.ID, prev, i)
			continue
		}
		agentIDs[a.ID] = i
	}

	ruleIDs := make(map[string]int)
	for i, r := range cfg.Rules {
		if r.ID == "" {
			addf("rules[%d]: id is required", i)
			continue
		}
		if prev, ok := ruleIDs[r.ID]; ok {
			addf("duplicate rule id %q (rules[%d] and rules[%d])", r.ID, prev, i)
		} else {
			ruleIDs[r.ID] = i
		}
		validateRule(r, addf)
	}

	cron := gronx.New()
	scheduleIDs := make(map[string]int)
	for i, s := range cfg.Schedules {
		if s.ID == "" {
			addf("schedules[%d]: id is required", i)
			continue
		}
		if prev, ok := scheduleIDs[s.ID]; ok {
			addf("duplicate schedule id %q (schedules[%d] and schedules[%d])", s.ID, prev, i)
		} else {
			scheduleIDs[s.ID] = i
		}
		if !cron.IsValid(s.Cron) {
			addf("schedule %s: invalid cron expression %q", s.ID, s.Cron)
		}
		if s.EventType != "" && !event.Known(event.Type(s.EventType)) {
			addf("schedule %s: unknown event type %q", s.ID, s.EventType)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateRule(r RuleDef, addf func(string, ...any)) {
	if len(r.EventTypes) == 0 {
		addf("rule %s: event_types must not be empty", r.ID)
	}
	for _, t := range r.EventTypes {
		if t != string(event.All) && !event.Known(event.Type(t)) {
			addf("rule %s: unknown event type %q", r.ID, t)
		}
	}
	if r.When != "" {
		if _, err := condition.Parse(r.When); err != nil {
			addf("rule %s: when: %v", r.ID, err)
		}
	}
	if len(r.Effects) == 0 {
		addf("rule %s: at least one effect is required", r.ID)
	}
	seen := make(map[string]bool)
	for j, e := range r.Effects {
		if e.ID == "" {
			addf("rule %s: effects[%d]: id is required", r.ID, j)
		} else if seen[e.ID] {
			addf("rule %s: duplicate effect id %q", r.ID, e.ID)
		} else {
			seen[e.ID] = true
		}
		if e.Type == "" {
			addf("rule %s: effects[%d]: type is required", r.ID, j)
		}
	}
}
