// Package counter increments numeric store fields from a rule.
package counter

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/opscore/internal/condition"
	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/store"
)

// IncrementEffect handles "counter.increment" effects.
//
//	collection: <name>
//	id: <document id | ${path}>
//	field: <field name>
//	by: <number | ${path}>   defaults to 1
//
// The increment is keyed by event, rule and effect, so propagating the same
// event twice does not double count.
type IncrementEffect struct {
	store store.Store
}

func NewIncrement(s store.Store) *IncrementEffect { return &IncrementEffect{store: s} }

func (c *IncrementEffect) Type() string { return "counter.increment" }

func (c *IncrementEffect) Validate(params map[string]any) error {
	for _, key := range []string{"collection", "id", "field"} {
		if _, err := effect.String(params, key); err != nil {
			return fmt.Errorf("counter.increment: %w", err)
		}
	}
	switch by := params["by"].(type) {
	case nil:
	case string:
		if !effect.IsTemplate(by) {
			return fmt.Errorf("counter.increment: param \"by\" must be a number or a ${path} template")
		}
	default:
		if _, ok := condition.Number(by); !ok {
			return fmt.Errorf("counter.increment: param \"by\" must be a number, got %T", by)
		}
	}
	return nil
}

func (c *IncrementEffect) Execute(ctx context.Context, call effect.Call) (*effect.Result, error) {
	var addr [3]string
	for i, key := range []string{"collection", "id", "field"} {
		s, err := effect.String(call.Params, key)
		if err != nil {
			return nil, err
		}
		addr[i] = s
	}
	delta := 1.0
	if by, ok := call.Params["by"]; ok && by != nil {
		f, ok := condition.Number(by)
		if !ok {
			return nil, fmt.Errorf("counter.increment: %v is not a number", by)
		}
		delta = f
	}

	applied, err := c.store.Increment(ctx, addr[0], addr[1], addr[2], delta, call.DedupKey())
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("added %g to %s/%s.%s", delta, addr[0], addr[1], addr[2])
	if !applied {
		msg = "already applied for this event"
	}
	return &effect.Result{EffectID: call.EffectID, Type: c.Type(), Success: true, Message: msg}, nil
}
