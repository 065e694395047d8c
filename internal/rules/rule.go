// Package rules compiles propagation rule definitions into matchable rules.
package rules

import (
	"fmt"

	"github.com/gyaneshwarpardhi/opscore/internal/condition"
	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

// Rule is a compiled propagation rule. It is immutable after Build.
type Rule struct {
	ID          string
	Name        string
	Description string
	// Enabled is the initial state from the definition.
	Enabled    bool
	EventTypes []event.Type
	Effects    []Effect

	anyType bool
	types   map[event.Type]struct{}
	sources map[string]struct{} // empty = all sources allowed
	when    condition.Expr      // nil = always
}

// Effect is one compiled side effect of a rule.
type Effect struct {
	ID       string
	Type     string
	Params   map[string]any
	Executor effect.Executor
}

// Matches reports whether ev should trigger the rule. An error means the
// condition could not be evaluated against this event.
func (r *Rule) Matches(v *event.View) (bool, error) {
	ev := v.Event()
	if !r.anyType {
		if _, ok := r.types[ev.Type]; !ok {
			return false, nil
		}
	}
	if len(r.sources) > 0 {
		if _, ok := r.sources[ev.Metadata.Source]; !ok {
			return false, nil
		}
	}
	if r.when == nil {
		return true, nil
	}
	ok, err := condition.Evaluate(r.when, v)
	if err != nil {
		return false, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return ok, nil
}

// Set is an ordered collection of compiled rules.
type Set struct {
	rules []*Rule
	byID  map[string]*Rule
}

// Rules returns the rules in definition order.
func (s *Set) Rules() []*Rule {
	if s == nil {
		return nil
	}
	return s.rules
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Get returns the rule with the given id.
func (s *Set) Get(id string) (*Rule, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.byID[id]
	return r, ok
}
