package system

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/opscore/internal/agent"
	"github.com/gyaneshwarpardhi/opscore/internal/agent/agents"
	"github.com/gyaneshwarpardhi/opscore/internal/bus"
	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/dispatch"
	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/counter"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/document"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/emit"
	"github.com/gyaneshwarpardhi/opscore/internal/propagation"
	"github.com/gyaneshwarpardhi/opscore/internal/rules"
	"github.com/gyaneshwarpardhi/opscore/internal/schedule"
	"github.com/gyaneshwarpardhi/opscore/internal/store"
)

// Runtime is the assembled object graph behind one opscore process.
type Runtime struct {
	Bus        *bus.Bus
	Agents     *agent.Registry
	Effects    *effect.Registry
	Engine     *propagation.Engine
	Dispatcher *dispatch.Dispatcher
	Scheduler  *schedule.Scheduler
	Store      store.Store

	init *Initializer
	log  *slog.Logger
}

// New builds every component from cfg. Nothing is subscribed until Start.
// The dispatcher workers stop when ctx is cancelled.
func New(ctx context.Context, cfg *config.Config, st store.Store, log *slog.Logger, opts ...bus.Option) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}
	busOpts := []bus.Option{
		bus.WithLogger(log),
		bus.WithRecentCapacity(cfg.Bus.RecentCapacity),
		bus.WithHandlerTimeout(time.Duration(cfg.Bus.HandlerTimeoutMs) * time.Millisecond),
		bus.WithMaxDepth(cfg.Bus.MaxDepth),
	}
	b := bus.New(append(busOpts, opts...)...)

	effects, err := effect.NewRegistry(
		emit.New(b),
		document.NewMerge(st),
		counter.NewIncrement(st),
	)
	if err != nil {
		return nil, err
	}
	set, err := rules.Build(rules.WithBuiltins(cfg.Rules), effects)
	if err != nil {
		return nil, err
	}
	defs, err := agents.Definitions(agents.Deps{Bus: b, Store: st}, cfg.Agents)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		Bus:        b,
		Agents:     agent.NewRegistry(b, log),
		Effects:    effects,
		Engine:     propagation.New(set, log),
		Dispatcher: dispatch.New(ctx, b, cfg.Dispatch.Workers, cfg.Dispatch.QueueDepth, log),
		Scheduler:  schedule.New(b, cfg.Schedules, log),
		Store:      st,
		log:        log.With("component", "runtime"),
	}
	r.init = NewInitializer(b, r.Agents, r.Engine, defs, log)
	return r, nil
}

// Start runs the one-shot initialization.
func (r *Runtime) Start(ctx context.Context) error {
	return r.init.Init(ctx)
}

// Apply swaps in the rules and schedules of a reloaded config. Rules are
// built first, so a config whose rules fail to compile changes nothing.
// Agent settings take effect on restart only.
func (r *Runtime) Apply(cfg *config.Config) error {
	set, err := rules.Build(rules.WithBuiltins(cfg.Rules), r.Effects)
	if err != nil {
		return fmt.Errorf("rebuild rules: %w", err)
	}
	r.Engine.SwapRules(set)
	r.Scheduler.Swap(cfg.Schedules)
	r.log.Info("rules swapped", "rules", set.Len(), "schedules", r.Scheduler.Len())
	return nil
}

// Stop drains queued events and then shuts the reactive layer down.
func (r *Runtime) Stop(ctx context.Context, reason string) error {
	r.Dispatcher.Drain()
	return r.init.Shutdown(ctx, reason)
}
