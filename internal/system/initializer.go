// Package system bootstraps the reactive core: agents, the propagation
// engine and the lifecycle events that bracket them.
package system

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gyaneshwarpardhi/opscore/internal/agent"
	"github.com/gyaneshwarpardhi/opscore/internal/bus"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/propagation"
)

// Initializer performs the one-shot bootstrap of the reactive layer.
type Initializer struct {
	bus    *bus.Bus
	agents *agent.Registry
	engine *propagation.Engine
	defs   []agent.Definition
	log    *slog.Logger

	initOnce sync.Once
	initErr  error
	detach   bus.Unsubscribe

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewInitializer prepares an Initializer that will register defs on agents
// and attach engine to b.
func NewInitializer(b *bus.Bus, agents *agent.Registry, engine *propagation.Engine, defs []agent.Definition, log *slog.Logger) *Initializer {
	if log == nil {
		log = slog.Default()
	}
	return &Initializer{
		bus:    b,
		agents: agents,
		engine: engine,
		defs:   defs,
		log:    log.With("component", "system"),
	}
}

// Init registers every agent, attaches the propagation engine and emits
// system:startup. Only the first call does anything; later calls return
// the first call's error.
func (i *Initializer) Init(ctx context.Context) error {
	i.initOnce.Do(func() { i.initErr = i.init(ctx) })
	return i.initErr
}

func (i *Initializer) init(ctx context.Context) error {
	for _, def := range i.defs {
		if err := i.agents.Register(def); err != nil {
			i.agents.Close()
			return fmt.Errorf("register agents: %w", err)
		}
	}
	i.detach = i.engine.Attach(i.bus)

	snap := event.Startup{
		Agents:        i.agents.Len(),
		Rules:         len(i.engine.Rules()),
		Subscriptions: i.bus.SubscriptionCount(),
	}
	if _, err := i.bus.Emit(ctx, event.SystemStartup, snap, event.Metadata{Source: "system"}); err != nil {
		return fmt.Errorf("emit %s: %w", event.SystemStartup, err)
	}

	ids := make([]string, 0, snap.Agents)
	for _, a := range i.agents.Agents() {
		ids = append(ids, a.ID)
	}
	i.log.Info("system initialized",
		"agents", ids,
		"rules", snap.Rules,
		"subscriptions", snap.Subscriptions,
	)
	return nil
}

// Shutdown emits system:shutdown, then removes the agent and engine
// subscriptions. It is a no-op before a successful Init and after the
// first call.
func (i *Initializer) Shutdown(ctx context.Context, reason string) error {
	if i.detach == nil {
		return nil
	}
	i.shutdownOnce.Do(func() {
		_, err := i.bus.Emit(ctx, event.SystemShutdown, event.Shutdown{Reason: reason}, event.Metadata{Source: "system"})
		if err != nil {
			i.shutdownErr = fmt.Errorf("emit %s: %w", event.SystemShutdown, err)
		}
		i.agents.Close()
		i.detach()
		i.log.Info("system stopped", "reason", reason, "subscriptions", i.bus.SubscriptionCount())
	})
	return i.shutdownErr
}
