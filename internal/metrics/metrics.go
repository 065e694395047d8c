package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opscore_events_emitted_total",
		Help: "Total number of events emitted on the bus, labelled by event type.",
	}, []string{"event_type"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opscore_events_rejected_total",
		Help: "Total number of emit calls rejected as malformed, labelled by reason.",
	}, []string{"reason"})

	SubscriberFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opscore_subscriber_failures_total",
		Help: "Total number of subscriber errors or panics caught by the bus.",
	}, []string{"event_type"})

	EmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opscore_emit_duration_ms",
		Help:    "Time for one emit call to run every subscriber, in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 1000},
	})

	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opscore_subscriptions",
		Help: "Current number of bus subscriptions.",
	})

	AgentInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opscore_agent_invocations_total",
		Help: "Agent handler invocations, labelled by agent and status (ok, error, skipped).",
	}, []string{"agent_id", "status"})

	RulesFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opscore_rules_fired_total",
		Help: "Propagation rule matches, labelled by rule ID.",
	}, []string{"rule_id"})

	EffectsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opscore_effects_executed_total",
		Help: "Propagation effects executed, labelled by effect type and status.",
	}, []string{"effect_type", "status"})

	DispatchQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opscore_dispatch_queued_total",
		Help: "Events accepted onto the async dispatch queue.",
	})

	DispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opscore_dispatch_dropped_total",
		Help: "Events rejected because the async dispatch queue was full.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opscore_dispatch_queue_utilization_ratio",
		Help: "Current async dispatch queue utilization (0–1).",
	})

	SchedulesTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opscore_schedules_triggered_total",
		Help: "Cron schedules that fired, labelled by schedule ID.",
	}, []string{"schedule_id"})
)
