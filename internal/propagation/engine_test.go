package propagation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opscore/internal/bus"
	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/counter"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/document"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/emit"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/propagation"
	"github.com/gyaneshwarpardhi/opscore/internal/rules"
	"github.com/gyaneshwarpardhi/opscore/internal/store/sqlite"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordEffect remembers every call; fail makes it error or panic.
type recordEffect struct {
	typ   string
	calls []effect.Call
	fail  string // "", "error" or "panic"
}

func (r *recordEffect) Type() string                   { return r.typ }
func (r *recordEffect) Validate(map[string]any) error { return nil }
func (r *recordEffect) Execute(_ context.Context, c effect.Call) (*effect.Result, error) {
	r.calls = append(r.calls, c)
	switch r.fail {
	case "error":
		return nil, errors.New("downstream unavailable")
	case "panic":
		panic("boom")
	}
	return &effect.Result{EffectID: c.EffectID, Type: r.typ, Success: true}, nil
}

func rule(id, eventType, effectType string) config.RuleDef {
	return config.RuleDef{
		ID:         id,
		EventTypes: []string{eventType},
		Effects:    []config.EffectDef{{ID: id + "-effect", Type: effectType, Params: map[string]any{"lead": "${payload.leadId}"}}},
	}
}

func registryOf(t *testing.T, executors ...effect.Executor) *effect.Registry {
	t.Helper()
	reg, err := effect.NewRegistry(executors...)
	require.NoError(t, err)
	return reg
}

func engineWith(t *testing.T, reg *effect.Registry, defs ...config.RuleDef) *propagation.Engine {
	t.Helper()
	set, err := rules.Build(defs, reg)
	require.NoError(t, err)
	return propagation.New(set, quiet)
}

func TestLeadConvertedEndToEnd(t *testing.T) {
	rec := &recordEffect{typ: "record"}
	eng := engineWith(t, registryOf(t, rec), rule("open-opportunity", "lead:converted", "record"))
	b := bus.New(bus.WithLogger(quiet))
	eng.Attach(b)

	payload := map[string]any{"leadId": "L1", "opportunityId": "O1"}
	ev, err := b.Emit(context.Background(), event.LeadConverted, payload, event.Metadata{})
	require.NoError(t, err)

	// Emit has returned, so the effect has already run.
	require.Len(t, rec.calls, 1)
	call := rec.calls[0]
	assert.Equal(t, "open-opportunity", call.RuleID)
	assert.Equal(t, ev.ID, call.Event.Event().ID)
	assert.Equal(t, payload, call.Event.Event().Data)
	assert.Equal(t, "L1", call.Params["lead"])
}

func TestNonMatchingTypeDoesNotFire(t *testing.T) {
	rec := &recordEffect{typ: "record"}
	eng := engineWith(t, registryOf(t, rec), rule("r", "lead:converted", "record"))
	b := bus.New(bus.WithLogger(quiet))
	eng.Attach(b)

	_, err := b.Emit(context.Background(), event.LeadCreated, event.Lead{LeadID: "L1"}, event.Metadata{})
	require.NoError(t, err)
	assert.Empty(t, rec.calls)
}

func TestFailingRuleDoesNotStopOthers(t *testing.T) {
	broken := &recordEffect{typ: "broken", fail: "error"}
	panicky := &recordEffect{typ: "panicky", fail: "panic"}
	ok := &recordEffect{typ: "ok"}
	eng := engineWith(t, registryOf(t, broken, panicky, ok),
		rule("a", "lead:converted", "broken"),
		rule("b", "lead:converted", "panicky"),
		rule("c", "lead:converted", "ok"),
	)

	res := eng.Process(context.Background(), event.Event{ID: "e1", Type: event.LeadConverted,
		Data: event.Conversion{LeadID: "L1", OpportunityID: "O1"}})
	assert.Equal(t, []string{"a", "b", "c"}, res.RulesMatched)
	require.Len(t, res.EffectsExecuted, 3)
	assert.False(t, res.EffectsExecuted[0].Success)
	assert.False(t, res.EffectsExecuted[1].Success)
	assert.Contains(t, res.EffectsExecuted[1].Message, "panic")
	assert.True(t, res.EffectsExecuted[2].Success)
	assert.Len(t, ok.calls, 1)

	assert.NoError(t, eng.OnEvent(context.Background(), event.Event{ID: "e2", Type: event.LeadConverted,
		Data: event.Conversion{LeadID: "L1"}}))
}

func TestFailedEffectStopsItsRule(t *testing.T) {
	broken := &recordEffect{typ: "broken", fail: "error"}
	after := &recordEffect{typ: "after"}
	eng := engineWith(t, registryOf(t, broken, after), config.RuleDef{
		ID: "r", EventTypes: []string{"*"},
		Effects: []config.EffectDef{{ID: "first", Type: "broken"}, {ID: "second", Type: "after"}},
	})
	eng.Process(context.Background(), event.Event{ID: "e", Type: event.LeadCreated})
	assert.Len(t, broken.calls, 1)
	assert.Empty(t, after.calls)
}

func TestUnresolvedTemplateFailsEffect(t *testing.T) {
	rec := &recordEffect{typ: "record"}
	eng := engineWith(t, registryOf(t, rec), rule("r", "lead:converted", "record"))
	res := eng.Process(context.Background(), event.Event{ID: "e", Type: event.LeadConverted, Data: map[string]any{}})
	require.Len(t, res.EffectsExecuted, 1)
	assert.False(t, res.EffectsExecuted[0].Success)
	assert.Empty(t, rec.calls)
}

func TestEnableDisableRule(t *testing.T) {
	rec := &recordEffect{typ: "record"}
	eng := engineWith(t, registryOf(t, rec), rule("r", "lead:converted", "record"))
	ev := event.Event{ID: "e", Type: event.LeadConverted, Data: event.Conversion{LeadID: "L1"}}

	require.True(t, eng.DisableRule("r"))
	require.True(t, eng.DisableRule("r"))
	eng.Process(context.Background(), ev)
	assert.Empty(t, rec.calls)
	assert.False(t, eng.Rules()[0].Enabled)

	require.True(t, eng.EnableRule("r"))
	eng.Process(context.Background(), ev)
	assert.Len(t, rec.calls, 1)

	assert.False(t, eng.EnableRule("ghost"))
	assert.False(t, eng.DisableRule("ghost"))
}

func TestSwapRules(t *testing.T) {
	rec := &recordEffect{typ: "record"}
	reg := registryOf(t, rec)
	eng := engineWith(t, reg, rule("old", "lead:converted", "record"))
	require.True(t, eng.DisableRule("old"))

	set, err := rules.Build([]config.RuleDef{rule("new", "lead:created", "record")}, reg)
	require.NoError(t, err)
	eng.SwapRules(set)

	infos := eng.Rules()
	require.Len(t, infos, 1)
	assert.Equal(t, "new", infos[0].ID)
	assert.True(t, infos[0].Enabled)
	assert.Equal(t, []event.Type{event.LeadCreated}, infos[0].EventTypes)
	assert.False(t, eng.EnableRule("old"))
}

func TestAttachUnsubscribe(t *testing.T) {
	eng := engineWith(t, registryOf(t))
	b := bus.New(bus.WithLogger(quiet))
	detach := eng.Attach(b)
	assert.Equal(t, 1, b.SubscriptionCount())
	detach()
	assert.Equal(t, 0, b.SubscriptionCount())
}

func TestBuiltinChainPaymentToProject(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	b := bus.New(bus.WithLogger(quiet))
	reg := registryOf(t, emit.New(b), document.NewMerge(s), counter.NewIncrement(s))
	set, err := rules.Build(rules.Builtin(), reg)
	require.NoError(t, err)
	eng := propagation.New(set, quiet)
	eng.Attach(b)

	_, err = b.Emit(ctx, event.InvoicePaid, event.InvoicePayment{InvoiceID: "I1", ProjectID: "P1", Amount: 300}, event.Metadata{})
	require.NoError(t, err)
	_, err = b.Emit(ctx, event.PaymentReceived, event.Payment{PaymentID: "PAY1", InvoiceID: "I2", Amount: 50}, event.Metadata{})
	require.NoError(t, err)

	project, err := s.Get(ctx, "projects", "P1")
	require.NoError(t, err)
	assert.Equal(t, "paid", project.Fields["invoiceStatus"])
	assert.Equal(t, 300.0, project.Fields["amountPaid"])

	invoice, err := s.Get(ctx, "invoices", "I2")
	require.NoError(t, err)
	assert.Equal(t, "paid", invoice.Fields["status"])
	assert.Equal(t, "PAY1", invoice.Fields["paymentId"])

	recent := b.RecentEvents(1)
	require.Len(t, recent, 1)
	assert.Equal(t, event.InvoicePaid, recent[0].Type)
	assert.Equal(t, "rule:payment-received-marks-invoice-paid", recent[0].Metadata.Source)
	assert.NotEmpty(t, recent[0].Metadata.CausationID)
	assert.NotContains(t, recent[0].Data, "projectId")

	// A payment naming its project reaches the project through invoice:paid.
	_, err = b.Emit(ctx, event.PaymentReceived, event.Payment{PaymentID: "PAY2", InvoiceID: "I3", ProjectID: "P2", Amount: 75}, event.Metadata{})
	require.NoError(t, err)

	p2, err := s.Get(ctx, "projects", "P2")
	require.NoError(t, err)
	assert.Equal(t, "paid", p2.Fields["invoiceStatus"])
	assert.Equal(t, "I3", p2.Fields["lastInvoiceId"])
	assert.Equal(t, 75.0, p2.Fields["amountPaid"])
}

func TestBuiltinPipelineTotalOncePerEvent(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	reg := registryOf(t, emit.New(bus.New(bus.WithLogger(quiet))), document.NewMerge(s), counter.NewIncrement(s))
	set, err := rules.Build(rules.Builtin(), reg)
	require.NoError(t, err)
	eng := propagation.New(set, quiet)

	won := event.Event{ID: "won-1", Type: event.OpportunityWon, Data: event.Opportunity{OpportunityID: "O1", Value: 1200}}
	eng.Process(ctx, won)
	eng.Process(ctx, won)

	totals, err := s.Get(ctx, "pipeline", "totals")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, totals.Fields["wonValue"])
	assert.Equal(t, 1.0, totals.Fields["wonCount"])
}
