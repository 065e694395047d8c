// Package effect holds the side effects a propagation rule can perform.
package effect

import (
	"context"

	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

// Result holds the outcome of executing a single effect.
type Result struct {
	EffectID string `json:"effect_id"`
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

// Call is one execution of an effect for one event.
type Call struct {
	RuleID   string
	EffectID string
	// Params have had every ${path} template resolved against Event.
	Params map[string]any
	Event  *event.View
}

// DedupKey identifies this rule/effect applied to this event.
func (c Call) DedupKey() string {
	return c.Event.Event().ID + "/" + c.RuleID + "/" + c.EffectID
}

// Executor is the interface all effect implementations must satisfy.
type Executor interface {
	// Type returns the string key this executor is registered under.
	Type() string
	// Execute performs the effect.
	Execute(ctx context.Context, call Call) (*Result, error)
	// Validate checks the unresolved params when rules are built.
	Validate(params map[string]any) error
}
