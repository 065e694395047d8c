// Package api exposes the bus, agents and rules over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/opscore/internal/agent"
	"github.com/gyaneshwarpardhi/opscore/internal/bus"
	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/dispatch"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/metrics"
	"github.com/gyaneshwarpardhi/opscore/internal/propagation"
)

const (
	maxBatchSize       = 100
	defaultRecentLimit = 20
	overloadThreshold  = 0.8
)

// Reloader re-reads the config file and applies it.
type Reloader interface {
	Reload() (*config.Config, error)
}

// Deps are the components the HTTP surface reads from and drives.
type Deps struct {
	Bus        *bus.Bus
	Agents     *agent.Registry
	Engine     *propagation.Engine
	Dispatcher *dispatch.Dispatcher
	Stream     *Hub
	// Reloader is optional; without it POST /v1/rules/reload answers 501.
	Reloader Reloader
	// Ready is an optional dependency probe for /readyz, e.g. the store ping.
	Ready func(ctx context.Context) error
	Log   *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Deps
	started time.Time
	mux     *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	d.Log = d.Log.With("component", "api")
	h := &Handler{Deps: d, started: time.Now(), mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.emitEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.emitBatch)
	h.mux.HandleFunc("GET /v1/events/recent", h.recentEvents)
	if d.Stream != nil {
		h.mux.Handle("GET /v1/events/stream", d.Stream)
	}
	h.mux.HandleFunc("GET /v1/agents", h.listAgents)
	h.mux.HandleFunc("POST /v1/agents/{id}/enable", h.toggleAgent(true))
	h.mux.HandleFunc("POST /v1/agents/{id}/disable", h.toggleAgent(false))
	h.mux.HandleFunc("GET /v1/rules", h.listRules)
	h.mux.HandleFunc("POST /v1/rules/{id}/enable", h.toggleRule(true))
	h.mux.HandleFunc("POST /v1/rules/{id}/disable", h.toggleRule(false))
	h.mux.HandleFunc("POST /v1/rules/reload", h.reloadRules)
	h.mux.HandleFunc("GET /v1/status", h.status)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(d.Log, h.mux)
}

// EmitRequest is the body of POST /v1/events and one element of a batch.
type EmitRequest struct {
	Type     event.Type      `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata event.Metadata  `json:"metadata"`
}

// decode turns the request into a typed payload. Requests without a source
// are attributed to the API.
func (req *EmitRequest) decode() (any, error) {
	if req.Type == "" {
		return nil, bus.ErrMissingType
	}
	if req.Type == event.All {
		return nil, bus.ErrWildcardEmit
	}
	if req.Metadata.Source == "" {
		req.Metadata.Source = "api"
	}
	return event.Decode(req.Type, req.Data)
}

// POST /v1/events - synchronous single-event emission.
func (h *Handler) emitEvent(w http.ResponseWriter, r *http.Request) {
	var req EmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	data, err := req.decode()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Subscribers finish even if the client goes away mid-request.
	ev, err := h.Bus.Emit(context.WithoutCancel(r.Context()), req.Type, data, req.Metadata)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, bus.ErrChainTooDeep) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// POST /v1/events/batch - async batch emission (up to 100 events).
func (h *Handler) emitBatch(w http.ResponseWriter, r *http.Request) {
	if h.Dispatcher == nil {
		writeError(w, http.StatusNotImplemented, "batch emission is not configured")
		return
	}
	var reqs []EmitRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(reqs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(reqs), maxBatchSize))
		return
	}

	queued := 0
	var problems []string
	for i := range reqs {
		data, err := reqs[i].decode()
		if err != nil {
			problems = append(problems, fmt.Sprintf("events[%d]: %s", i, err))
			continue
		}
		if h.Dispatcher.Submit(dispatch.Job{Type: reqs[i].Type, Data: data, Metadata: reqs[i].Metadata}) {
			queued++
		} else {
			problems = append(problems, fmt.Sprintf("events[%d]: queue full", i))
		}
	}

	resp := map[string]any{
		"job_id":   uuid.New().String(),
		"total":    len(reqs),
		"queued":   queued,
		"rejected": len(reqs) - queued,
	}
	if len(problems) > 0 {
		resp["errors"] = problems
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// GET /v1/events/recent?limit=N - newest first.
func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	events := h.Bus.RecentEvents(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"count":    len(events),
		"capacity": h.Bus.RecentCapacity(),
	})
}

// GET /v1/agents
func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": h.Agents.Agents()})
}

func (h *Handler) toggleAgent(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var ok bool
		if on {
			ok = h.Agents.Enable(id)
		} else {
			ok = h.Agents.Disable(id)
		}
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown agent %q", id))
			return
		}
		writeJSON(w, http.StatusOK, toggleResponse{ID: id, Enabled: on})
	}
}

// GET /v1/rules
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rules": h.Engine.Rules()})
}

func (h *Handler) toggleRule(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var ok bool
		if on {
			ok = h.Engine.EnableRule(id)
		} else {
			ok = h.Engine.DisableRule(id)
		}
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown rule %q", id))
			return
		}
		writeJSON(w, http.StatusOK, toggleResponse{ID: id, Enabled: on})
	}
}

// POST /v1/rules/reload - hot-reload rules and schedules from disk.
func (h *Handler) reloadRules(w http.ResponseWriter, r *http.Request) {
	if h.Reloader == nil {
		writeError(w, http.StatusNotImplemented, "no config file to reload")
		return
	}
	cfg, err := h.Reloader.Reload()
	if err != nil {
		status := http.StatusInternalServerError
		if cfg != nil {
			// Config parsed and validated but could not be applied.
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":        true,
		"version":         cfg.Version,
		"rules_count":     len(h.Engine.Rules()),
		"schedules_count": len(cfg.Schedules),
	})
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Subscriptions    int          `json:"subscriptions"`
	Agents           int          `json:"agents"`
	Rules            int          `json:"rules"`
	RecentCapacity   int          `json:"recent_capacity"`
	RecentBuffered   int          `json:"recent_buffered"`
	QueueUtilization float64      `json:"queue_utilization"`
	StreamClients    int          `json:"stream_clients"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	EventTypes       []event.Type `json:"event_types"`
}

// GET /v1/status - snapshot for the system-status panel.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Subscriptions:  h.Bus.SubscriptionCount(),
		Agents:         h.Agents.Len(),
		Rules:          len(h.Engine.Rules()),
		RecentCapacity: h.Bus.RecentCapacity(),
		RecentBuffered: len(h.Bus.RecentEvents(h.Bus.RecentCapacity())),
		UptimeSeconds:  int64(time.Since(h.started).Seconds()),
		EventTypes:     event.Types(),
	}
	if h.Dispatcher != nil {
		resp.QueueUtilization = h.Dispatcher.QueueUtilization()
	}
	if h.Stream != nil {
		resp.StreamClients = h.Stream.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /healthz - always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz - 503 if the dispatch queue is >80% full or a dependency is down.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	var util float64
	if h.Dispatcher != nil {
		util = h.Dispatcher.QueueUtilization()
		metrics.QueueUtilization.Set(util)
	}
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	if util > overloadThreshold {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
