package rules_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/counter"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/document"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/emit"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/rules"
)

type nopEmitter struct{}

func (nopEmitter) Emit(_ context.Context, t event.Type, _ any, _ event.Metadata) (event.Event, error) {
	return event.Event{Type: t}, nil
}

func registry() *effect.Registry {
	reg, err := effect.NewRegistry(
		emit.New(nopEmitter{}),
		document.NewMerge(nil),
		counter.NewIncrement(nil),
	)
	if err != nil {
		panic(err)
	}
	return reg
}

func TestBuildBuiltins(t *testing.T) {
	set, err := rules.Build(rules.Builtin(), registry())
	require.NoError(t, err)
	require.Equal(t, 4, set.Len())

	r, ok := set.Get("lead-converted-opens-opportunity")
	require.True(t, ok)
	assert.True(t, r.Enabled)
	assert.Len(t, r.Effects, 2)
	assert.Equal(t, []event.Type{event.LeadConverted}, r.EventTypes)
}

func TestMatches(t *testing.T) {
	no := false
	defs := []config.RuleDef{
		{ID: "typed", EventTypes: []string{"invoice:created"},
			Effects: []config.EffectDef{{ID: "e", Type: "emit", Params: map[string]any{"type": "invoice:sent"}}}},
		{ID: "sourced", EventTypes: []string{"*"}, Sources: []string{"billing"},
			Effects: []config.EffectDef{{ID: "e", Type: "emit", Params: map[string]any{"type": "invoice:sent"}}}},
		{ID: "guarded", EventTypes: []string{"invoice:created"}, When: "payload.total >= 1000", Enabled: &no,
			Effects: []config.EffectDef{{ID: "e", Type: "emit", Params: map[string]any{"type": "invoice:sent"}}}},
	}
	set, err := rules.Build(defs, registry())
	require.NoError(t, err)

	small := event.NewView(event.Event{Type: event.InvoiceCreated, Data: event.Invoice{InvoiceID: "I1", Total: 10},
		Metadata: event.Metadata{Source: "billing"}})
	big := event.NewView(event.Event{Type: event.InvoiceCreated, Data: event.Invoice{InvoiceID: "I2", Total: 5000}})
	other := event.NewView(event.Event{Type: event.LeadCreated, Data: event.Lead{LeadID: "L1"}})

	tests := []struct {
		rule string
		view *event.View
		want bool
	}{
		{"typed", small, true},
		{"typed", other, false},
		{"sourced", small, true},
		{"sourced", big, false},
		{"guarded", small, false},
		{"guarded", big, true},
	}
	for _, tt := range tests {
		r, ok := set.Get(tt.rule)
		require.True(t, ok)
		got, err := r.Matches(tt.view)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s on %s", tt.rule, tt.view.Event().Type)
	}

	guarded, _ := set.Get("guarded")
	assert.False(t, guarded.Enabled)
}

func TestMatchesConditionError(t *testing.T) {
	set, err := rules.Build([]config.RuleDef{{
		ID: "r", EventTypes: []string{"lead:created"}, When: "payload.missing > 1",
		Effects: []config.EffectDef{{ID: "e", Type: "emit", Params: map[string]any{"type": "lead:converted"}}},
	}}, registry())
	require.NoError(t, err)
	r, _ := set.Get("r")
	ok, err := r.Matches(event.NewView(event.Event{Type: event.LeadCreated, Data: map[string]any{}}))
	assert.False(t, ok)
	assert.ErrorContains(t, err, "rule r")
}

func TestBuildErrors(t *testing.T) {
	effects := []config.EffectDef{{ID: "e", Type: "emit", Params: map[string]any{"type": "lead:converted"}}}
	tests := []struct {
		name    string
		def     config.RuleDef
		wantErr string
	}{
		{"unknown effect", config.RuleDef{ID: "r", EventTypes: []string{"*"},
			Effects: []config.EffectDef{{ID: "e", Type: "sms.send"}}}, `unknown effect type "sms.send"`},
		{"invalid params", config.RuleDef{ID: "r", EventTypes: []string{"*"},
			Effects: []config.EffectDef{{ID: "e", Type: "document.merge", Params: map[string]any{"id": "x"}}}}, "document.merge"},
		{"unknown event type", config.RuleDef{ID: "r", EventTypes: []string{"nope:nope"}, Effects: effects}, "unknown event type"},
		{"bad condition", config.RuleDef{ID: "r", EventTypes: []string{"*"}, When: "((", Effects: effects}, "parse"},
		{"no effects", config.RuleDef{ID: "r", EventTypes: []string{"*"}}, "at least one effect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rules.Build([]config.RuleDef{tt.def}, registry())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := rules.Build([]config.RuleDef{
		{ID: "dup", EventTypes: []string{"*"}, Effects: effects},
		{ID: "dup", EventTypes: []string{"*"}, Effects: effects},
	}, registry())
	assert.ErrorContains(t, err, "duplicate id")
}

func TestWithBuiltins(t *testing.T) {
	off := false
	defs := rules.WithBuiltins([]config.RuleDef{
		{ID: "opportunity-won-pipeline-total", Enabled: &off, EventTypes: []string{"opportunity:won"},
			Effects: []config.EffectDef{{ID: "e", Type: "emit", Params: map[string]any{"type": "quote:accepted"}}}},
		{ID: "custom", EventTypes: []string{"quote:accepted"},
			Effects: []config.EffectDef{{ID: "e", Type: "emit", Params: map[string]any{"type": "invoice:created"}}}},
	})
	require.Len(t, defs, 5)
	assert.Equal(t, "opportunity-won-pipeline-total", defs[3].ID)
	assert.False(t, defs[3].IsEnabled())
	assert.Equal(t, "custom", defs[4].ID)

	set, err := rules.Build(defs, registry())
	require.NoError(t, err)
	assert.Equal(t, 5, set.Len())
}
