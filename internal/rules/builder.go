package rules

import (
	"fmt"

	"github.com/gyaneshwarpardhi/opscore/internal/condition"
	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

// Build compiles validated rule definitions into a Set.
// Conditions are parsed and effect params validated here; nothing is parsed
// at evaluation time. Disabled rules are kept so they can be enabled later.
func Build(defs []config.RuleDef, reg *effect.Registry) (*Set, error) {
	s := &Set{byID: make(map[string]*Rule, len(defs))}
	for _, def := range defs {
		r, err := compile(def, reg)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", def.ID, err)
		}
		if _, dup := s.byID[r.ID]; dup {
			return nil, fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		s.rules = append(s.rules, r)
		s.byID[r.ID] = r
	}
	return s, nil
}

func compile(def config.RuleDef, reg *effect.Registry) (*Rule, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	if len(def.EventTypes) == 0 {
		return nil, fmt.Errorf("event_types must not be empty")
	}
	r := &Rule{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Enabled:     def.IsEnabled(),
		types:       make(map[event.Type]struct{}, len(def.EventTypes)),
		sources:     make(map[string]struct{}, len(def.Sources)),
	}
	if r.Name == "" {
		r.Name = def.ID
	}
	for _, t := range def.EventTypes {
		et := event.Type(t)
		if et == event.All {
			r.anyType = true
		} else if !event.Known(et) {
			return nil, fmt.Errorf("%w %q", event.ErrUnknownType, t)
		}
		r.types[et] = struct{}{}
		r.EventTypes = append(r.EventTypes, et)
	}
	for _, src := range def.Sources {
		r.sources[src] = struct{}{}
	}
	if def.When != "" {
		expr, err := condition.Parse(def.When)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", def.When, err)
		}
		r.when = expr
	}
	if len(def.Effects) == 0 {
		return nil, fmt.Errorf("at least one effect is required")
	}
	for _, e := range def.Effects {
		exec, err := reg.Lookup(e.Type, e.Params)
		if err != nil {
			return nil, fmt.Errorf("effect %s: %w", e.ID, err)
		}
		r.Effects = append(r.Effects, Effect{ID: e.ID, Type: e.Type, Params: e.Params, Executor: exec})
	}
	return r, nil
}

// WithBuiltins returns the built-in definitions with overrides applied: a
// definition whose id matches a built-in replaces it in place, any other is
// appended.
func WithBuiltins(overrides []config.RuleDef) []config.RuleDef {
	out := Builtin()
	index := make(map[string]int, len(out))
	for i, d := range out {
		index[d.ID] = i
	}
	for _, d := range overrides {
		if i, ok := index[d.ID]; ok {
			out[i] = d
			continue
		}
		out = append(out, d)
	}
	return out
}
