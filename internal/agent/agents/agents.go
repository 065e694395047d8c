// Package agents holds the agents that ship with opscore.
package agents

import (
	"fmt"

	"github.com/gyaneshwarpardhi/opscore/internal/agent"
	"github.com/gyaneshwarpardhi/opscore/internal/condition"
	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/emit"
	"github.com/gyaneshwarpardhi/opscore/internal/store"
)

// Deps are the collaborators built-in agents act on.
type Deps struct {
	Bus   emit.Emitter
	Store store.Store
}

type factory func(d Deps, params map[string]any) (agent.Definition, error)

var builtin = []struct {
	id  string
	new factory
}{
	{"activity-log", newActivityLog},
	{"inventory-watch", newInventoryWatch},
	{"lead-router", newLeadRouter},
	{"invoice-notifier", newInvoiceNotifier},
}

// IDs returns the ids of the built-in agents in registration order.
func IDs() []string {
	out := make([]string, len(builtin))
	for i, b := range builtin {
		out[i] = b.id
	}
	return out
}

// Definitions builds every built-in agent, applying per-id overrides for
// the enabled flag and params. An override for an unknown id is an error.
func Definitions(d Deps, overrides []config.AgentConf) ([]agent.Definition, error) {
	byID := make(map[string]config.AgentConf, len(overrides))
	for _, o := range overrides {
		byID[o.ID] = o
	}

	defs := make([]agent.Definition, 0, len(builtin))
	for _, b := range builtin {
		o := byID[b.id]
		delete(byID, b.id)
		def, err := b.new(d, o.Params)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", b.id, err)
		}
		if o.Enabled != nil {
			def.Enabled = *o.Enabled
		}
		defs = append(defs, def)
	}
	for id := range byID {
		return nil, fmt.Errorf("agent %s: no such built-in agent", id)
	}
	return defs, nil
}

func stringParam(params map[string]any, key, def string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("param %q must be a non-empty string", key)
	}
	return s, nil
}

func numberParam(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := condition.Number(v)
	if !ok {
		return 0, fmt.Errorf("param %q must be a number, got %T", key, v)
	}
	return f, nil
}
