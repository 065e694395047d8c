package effect

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrUnknownEffect = errors.New("unknown effect type")

// Registry maps effect types to their executors. It is fixed at construction
// and safe for concurrent use.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds a Registry from executors. Every executor must have a
// distinct, non-empty type; all violations are reported together.
func NewRegistry(executors ...Executor) (*Registry, error) {
	r := &Registry{executors: make(map[string]Executor, len(executors))}
	var errs []error
	for i, e := range executors {
		switch {
		case e == nil:
			errs = append(errs, fmt.Errorf("effect %d: nil executor", i))
		case e.Type() == "":
			errs = append(errs, fmt.Errorf("effect %d (%T): empty type", i, e))
		case r.executors[e.Type()] != nil:
			errs = append(errs, fmt.Errorf("effect %q: registered twice", e.Type()))
		default:
			r.executors[e.Type()] = e
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("effect registry: %w", err)
	}
	return r, nil
}

// Get returns the executor registered for effectType.
func (r *Registry) Get(effectType string) (Executor, error) {
	e, ok := r.executors[effectType]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownEffect, effectType, strings.Join(r.Types(), ", "))
	}
	return e, nil
}

// Lookup returns the executor for effectType after checking params against
// it, so a rule referencing it can be compiled.
func (r *Registry) Lookup(effectType string, params map[string]any) (Executor, error) {
	e, err := r.Get(effectType)
	if err != nil {
		return nil, err
	}
	if err := e.Validate(params); err != nil {
		return nil, err
	}
	return e, nil
}

// Types returns every registered effect type in lexical order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.executors))
	for k := range r.executors {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
