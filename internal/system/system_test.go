package system_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/store/sqlite"
	"github.com/gyaneshwarpardhi/opscore/internal/system"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRuntime(t *testing.T, cfg *config.Config) *system.Runtime {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rt, err := system.New(ctx, cfg, s, quiet)
	require.NoError(t, err)
	return rt
}

func TestInitEmitsStartupSnapshot(t *testing.T) {
	rt := newRuntime(t, config.Default())
	require.NoError(t, rt.Start(context.Background()))

	recent := rt.Bus.RecentEvents(1)
	require.Len(t, recent, 1)
	assert.Equal(t, event.SystemStartup, recent[0].Type)
	assert.Equal(t, "system", recent[0].Metadata.Source)

	snap, err := event.As[event.Startup](recent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, rt.Agents.Len(), snap.Agents)
	assert.Equal(t, len(rt.Engine.Rules()), snap.Rules)
	assert.Equal(t, rt.Bus.SubscriptionCount(), snap.Subscriptions)
	assert.Positive(t, snap.Agents)
	assert.Positive(t, snap.Rules)
}

func TestInitIsIdempotent(t *testing.T) {
	rt := newRuntime(t, config.Default())
	ctx := context.Background()

	require.NoError(t, rt.Start(ctx))
	subs := rt.Bus.SubscriptionCount()
	agents := rt.Agents.Len()

	require.NoError(t, rt.Start(ctx))
	assert.Equal(t, subs, rt.Bus.SubscriptionCount())
	assert.Equal(t, agents, rt.Agents.Len())
	assert.Len(t, rt.Bus.RecentEvents(10), 1, "startup is emitted once")
}

func TestStopEmitsShutdownAndUnsubscribes(t *testing.T) {
	rt := newRuntime(t, config.Default())
	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	require.Positive(t, rt.Bus.SubscriptionCount())

	require.NoError(t, rt.Stop(ctx, "test"))
	assert.Zero(t, rt.Bus.SubscriptionCount())
	assert.Zero(t, rt.Agents.Len())

	recent := rt.Bus.RecentEvents(1)
	require.Len(t, recent, 1)
	assert.Equal(t, event.SystemShutdown, recent[0].Type)

	require.NoError(t, rt.Stop(ctx, "again"))
	assert.Len(t, rt.Bus.RecentEvents(10), 2, "shutdown is emitted once")
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	rt := newRuntime(t, config.Default())
	require.NoError(t, rt.Stop(context.Background(), "test"))
	assert.Empty(t, rt.Bus.RecentEvents(10))
}

func TestPaymentPropagatesThroughRules(t *testing.T) {
	rt := newRuntime(t, config.Default())
	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))

	_, err := rt.Bus.Emit(ctx, event.PaymentReceived,
		event.Payment{PaymentID: "PAY1", InvoiceID: "INV1", Amount: 420}, event.Metadata{Source: "billing"})
	require.NoError(t, err)

	invoice, err := rt.Store.Get(ctx, "invoices", "INV1")
	require.NoError(t, err)
	assert.Equal(t, "paid", invoice.Fields["status"])

	recent := rt.Bus.RecentEvents(2)
	require.Len(t, recent, 2)
	assert.Equal(t, event.InvoicePaid, recent[0].Type)
	assert.Equal(t, recent[1].ID, recent[0].Metadata.CausationID)

	activity, err := rt.Store.RecentActivity(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, activity, "activity-log records every event")
}

func TestApplySwapsRules(t *testing.T) {
	rt := newRuntime(t, config.Default())
	builtins := len(rt.Engine.Rules())

	cfg := config.Default()
	cfg.Rules = []config.RuleDef{{
		ID:         "flag-big-quotes",
		EventTypes: []string{"quote:accepted"},
		When:       "payload.total > 1000",
		Effects: []config.EffectDef{{ID: "flag", Type: "document.merge", Params: map[string]any{
			"collection": "quotes", "id": "${payload.quoteId}", "fields": map[string]any{"flagged": true},
		}}},
	}}
	require.NoError(t, rt.Apply(cfg))
	assert.Len(t, rt.Engine.Rules(), builtins+1)

	cfg.Rules[0].Effects[0].Type = "no.such.effect"
	require.Error(t, rt.Apply(cfg))
	assert.Len(t, rt.Engine.Rules(), builtins+1, "failed apply keeps the running rules")
}

func TestNewRejectsUnknownAgentOverride(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	cfg := config.Default()
	cfg.Agents = []config.AgentConf{{ID: "no-such-agent"}}
	_, err = system.New(context.Background(), cfg, s, quiet)
	assert.Error(t, err)
}
