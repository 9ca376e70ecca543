// Package metrics exposes Prometheus collectors for the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts events accepted by the bus, by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Events published to the event bus.",
	}, []string{"type"})

	// EventsDelivered counts successful handler completions.
	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "bus",
		Name:      "events_delivered_total",
		Help:      "Events delivered to a handler successfully.",
	})

	// EventsFailed counts handler failures (before any retry decision).
	EventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "bus",
		Name:      "events_failed_total",
		Help:      "Handler invocations that returned an error.",
	})

	// EventsDeadLettered counts events routed to the dead-letter subject.
	EventsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "bus",
		Name:      "events_dead_lettered_total",
		Help:      "Events routed to the dead-letter subject after retry exhaustion.",
	})

	// Subscriptions tracks currently registered subscriptions.
	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "bus",
		Name:      "subscriptions",
		Help:      "Active event bus subscriptions.",
	})

	// PlansGenerated counts execution plans produced by the planner.
	PlansGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "planner",
		Name:      "plans_generated_total",
		Help:      "Execution plans generated.",
	})

	// SagasFinished counts terminal saga outcomes, by status.
	SagasFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "saga",
		Name:      "sagas_finished_total",
		Help:      "Sagas that reached a terminal status.",
	}, []string{"status"})

	// StepsCompensated counts compensation invocations.
	StepsCompensated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "saga",
		Name:      "steps_compensated_total",
		Help:      "Saga steps compensated during rollback.",
	})
)
