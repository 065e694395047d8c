// Package agent catalogs named, toggleable reactive units bound to bus
// subscriptions.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gyaneshwarpardhi/opscore/internal/bus"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/metrics"
)

// Definition describes an agent at registration time.
type Definition struct {
	ID          string
	Name        string
	Description string
	// EventTypes the handler subscribes to; event.All for every event.
	EventTypes []event.Type
	// Enabled is the initial state.
	Enabled bool
	Handler bus.Handler
}

// Info is the diagnostic view of an agent.
type Info struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	EventTypes  []event.Type `json:"eventTypes"`
	Enabled     bool         `json:"enabled"`
}

// Subscriber is the part of the bus agents subscribe through.
type Subscriber interface {
	Subscribe(t event.Type, h bus.Handler) bus.Unsubscribe
}

type agent struct {
	def     Definition
	enabled atomic.Bool
	unsubs  []bus.Unsubscribe
}

// Registry owns every registered agent and its subscriptions.
type Registry struct {
	bus    Subscriber
	log    *slog.Logger
	mu     sync.RWMutex
	agents []*agent
	byID   map[string]*agent
}

// NewRegistry creates an empty Registry subscribing through b.
func NewRegistry(b Subscriber, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{bus: b, log: log.With("component", "agents"), byID: make(map[string]*agent)}
}

// Register subscribes the agent's handler to each of its event types, so
// it runs at most once per event. The subscription stays in place while the
// agent is disabled; the handler simply skips.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("agent: id is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("agent %s: handler is required", def.ID)
	}
	if len(def.EventTypes) == 0 {
		return fmt.Errorf("agent %s: at least one event type is required", def.ID)
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	def.EventTypes = uniqueTypes(def.EventTypes)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[def.ID]; dup {
		return fmt.Errorf("agent %s: already registered", def.ID)
	}
	a := &agent{def: def}
	a.enabled.Store(def.Enabled)
	for _, t := range def.EventTypes {
		a.unsubs = append(a.unsubs, r.bus.Subscribe(t, a.handle))
	}
	r.agents = append(r.agents, a)
	r.byID[def.ID] = a
	r.log.Debug("agent registered", "agent_id", def.ID, "event_types", def.EventTypes, "enabled", def.Enabled)
	return nil
}

// uniqueTypes drops repeated types and collapses the list to the wildcard
// when it is present.
func uniqueTypes(types []event.Type) []event.Type {
	if slices.Contains(types, event.All) {
		return []event.Type{event.All}
	}
	out := make([]event.Type, 0, len(types))
	for _, t := range types {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func (a *agent) handle(ctx context.Context, ev event.Event) error {
	if !a.enabled.Load() {
		metrics.AgentInvocations.WithLabelValues(a.def.ID, "skipped").Inc()
		return nil
	}
	if err := a.def.Handler(ctx, ev); err != nil {
		metrics.AgentInvocations.WithLabelValues(a.def.ID, "error").Inc()
		return fmt.Errorf("agent %s: %w", a.def.ID, err)
	}
	metrics.AgentInvocations.WithLabelValues(a.def.ID, "ok").Inc()
	return nil
}

// Agents lists agents in registration order.
func (r *Registry) Agents() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, Info{
			ID:          a.def.ID,
			Name:        a.def.Name,
			Description: a.def.Description,
			EventTypes:  a.def.EventTypes,
			Enabled:     a.enabled.Load(),
		})
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Enable turns an agent on. It reports false, and does nothing, for an unknown id.
func (r *Registry) Enable(id string) bool { return r.set(id, true) }

// Disable turns an agent off. It reports false, and does nothing, for an unknown id.
func (r *Registry) Disable(id string) bool { return r.set(id, false) }

func (r *Registry) set(id string, on bool) bool {
	r.mu.RLock()
	a, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("toggle of unknown agent ignored", "agent_id", id, "enabled", on)
		return false
	}
	if a.enabled.Swap(on) != on {
		r.log.Info("agent toggled", "agent_id", id, "enabled", on)
	}
	return true
}

// Close removes every agent subscription. The registry is empty afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		for _, unsub := range a.unsubs {
			unsub()
		}
	}
	r.agents = nil
	r.byID = make(map[string]*agent)
}
