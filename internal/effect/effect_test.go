package effect_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

type nopEffect struct{ typ string }

func (n nopEffect) Type() string                   { return n.typ }
func (n nopEffect) Validate(map[string]any) error { return nil }
func (n nopEffect) Execute(context.Context, effect.Call) (*effect.Result, error) {
	return &effect.Result{Success: true}, nil
}

type strictEffect struct{ nopEffect }

func (strictEffect) Type() string { return "strict" }
func (strictEffect) Validate(params map[string]any) error {
	_, err := effect.String(params, "need")
	return err
}

func view() *event.View {
	return event.NewView(event.Event{
		ID:   "ev-1",
		Type: event.LeadConverted,
		Data: event.Conversion{LeadID: "L1", OpportunityID: "O1"},
		Metadata: event.Metadata{
			Source:  "crm",
			Context: map[string]string{"region": "eu"},
		},
	})
}

func TestResolveParams(t *testing.T) {
	params := map[string]any{
		"id":      "${payload.opportunityId}",
		"label":   "lead ${payload.leadId} from ${meta.source}",
		"static":  3.5,
		"nested":  map[string]any{"region": "${meta.context.region}"},
		"list":    []any{"${event.type}", "plain"},
		"trigger": "${event.id}",
	}
	got, err := effect.ResolveParams(params, view())
	require.NoError(t, err)

	assert.Equal(t, "O1", got["id"])
	assert.Equal(t, "lead L1 from crm", got["label"])
	assert.Equal(t, 3.5, got["static"])
	assert.Equal(t, map[string]any{"region": "eu"}, got["nested"])
	assert.Equal(t, []any{"lead:converted", "plain"}, got["list"])
	assert.Equal(t, "ev-1", got["trigger"])

	// The input is left untouched.
	assert.Equal(t, "${payload.opportunityId}", params["id"])
}

func TestResolveParamsKeepsType(t *testing.T) {
	v := event.NewView(event.Event{ID: "e", Type: event.OpportunityWon, Data: event.Opportunity{OpportunityID: "O1", Value: 2500}})
	got, err := effect.ResolveParams(map[string]any{"by": "${payload.value}"}, v)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, got["by"])
}

func TestResolveParamsMissingField(t *testing.T) {
	_, err := effect.ResolveParams(map[string]any{"id": "${payload.nope}"}, view())
	assert.ErrorContains(t, err, "payload.nope")

	_, err = effect.ResolveParams(map[string]any{"id": "x-${payload.nope}"}, view())
	assert.ErrorContains(t, err, "payload.nope")
}

func TestResolveParamsOptional(t *testing.T) {
	params := map[string]any{
		"id":      "${payload.opportunityId?}",
		"project": "${payload.projectId?}",
		"label":   "lead ${payload.leadId}${payload.suffix?}",
		"list":    []any{"${payload.nope?}", "${payload.leadId?}"},
	}
	got, err := effect.ResolveParams(params, view())
	require.NoError(t, err)

	assert.Equal(t, "O1", got["id"])
	assert.NotContains(t, got, "project")
	assert.Equal(t, "lead L1", got["label"])
	assert.Equal(t, []any{"L1"}, got["list"])
}

func TestCallDedupKey(t *testing.T) {
	c := effect.Call{RuleID: "r", EffectID: "e", Event: view()}
	assert.Equal(t, "ev-1/r/e", c.DedupKey())
}

func TestRegistry(t *testing.T) {
	r, err := effect.NewRegistry(nopEffect{"b"}, nopEffect{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.Types())

	e, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", e.Type())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, effect.ErrUnknownEffect)
	assert.ErrorContains(t, err, "known: a, b")
}

func TestNewRegistryRejectsBadExecutors(t *testing.T) {
	_, err := effect.NewRegistry(nopEffect{"a"}, nopEffect{"a"}, nopEffect{""}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, `effect "a": registered twice`)
	assert.ErrorContains(t, err, "empty type")
	assert.ErrorContains(t, err, "nil executor")
}

func TestRegistryLookupValidates(t *testing.T) {
	r, err := effect.NewRegistry(strictEffect{})
	require.NoError(t, err)

	_, err = r.Lookup("strict", map[string]any{})
	assert.ErrorContains(t, err, "need")

	e, err := r.Lookup("strict", map[string]any{"need": "x"})
	require.NoError(t, err)
	assert.Equal(t, "strict", e.Type())

	_, err = r.Lookup("loose", nil)
	assert.ErrorIs(t, err, effect.ErrUnknownEffect)
}

func TestIsTemplate(t *testing.T) {
	assert.True(t, effect.IsTemplate("${payload.x}"))
	assert.False(t, effect.IsTemplate("a ${payload.x}"))
	assert.False(t, effect.IsTemplate("plain"))
}
