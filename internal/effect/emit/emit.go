// Package emit chains a new event onto the bus from a rule.
package emit

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

// Emitter publishes events. *bus.Bus satisfies it.
type Emitter interface {
	Emit(ctx context.Context, t event.Type, data any, md event.Metadata) (event.Event, error)
}

// Effect handles "emit" effects.
//
//	type: <event type>            required
//	data: {field: value|${path}}  optional, defaults to the triggering payload
//	source: <string>              optional, defaults to "rule:<rule id>"
type Effect struct {
	bus Emitter
}

func New(bus Emitter) *Effect { return &Effect{bus: bus} }

func (e *Effect) Type() string { return "emit" }

func (e *Effect) Validate(params map[string]any) error {
	t, err := effect.String(params, "type")
	if err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	if !event.Known(event.Type(t)) {
		return fmt.Errorf("emit: %w %q", event.ErrUnknownType, t)
	}
	if _, err := effect.Map(params, "data"); err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	return nil
}

func (e *Effect) Execute(ctx context.Context, call effect.Call) (*effect.Result, error) {
	t, err := effect.String(call.Params, "type")
	if err != nil {
		return nil, err
	}
	trigger := call.Event.Event()

	data, err := forwarded(event.Type(t), trigger.Data, call)
	if err != nil {
		return nil, err
	}

	source, _ := call.Params["source"].(string)
	if source == "" {
		source = "rule:" + call.RuleID
	}
	md := event.Metadata{
		Source:         source,
		UserID:         trigger.Metadata.UserID,
		OrganizationID: trigger.Metadata.OrganizationID,
	}

	ev, err := e.bus.Emit(ctx, event.Type(t), data, md)
	if err != nil {
		return nil, fmt.Errorf("emit %s: %w", t, err)
	}
	return &effect.Result{
		EffectID: call.EffectID,
		Type:     e.Type(),
		Success:  true,
		Message:  fmt.Sprintf("emitted %s %s", ev.Type, ev.ID),
	}, nil
}

// forwarded picks the payload of the chained event: the data param when set,
// otherwise the trigger's payload. A trigger DTO bound to another type is
// passed on in its generic map form, which every type accepts.
func forwarded(t event.Type, trigger any, call effect.Call) (any, error) {
	m, err := effect.Map(call.Params, "data")
	if err != nil {
		return nil, err
	}
	if m != nil {
		return m, nil
	}
	if event.Check(t, trigger) == nil {
		return trigger, nil
	}
	return call.Event.Payload(), nil
}
