// Package metrics defines the Prometheus collectors shared by the bus,
// the attribute stores and the enrichers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "attrflow"

// Delivery outcomes recorded by the bus.
const (
	DeliveryOK      = "ok"
	DeliveryError   = "error"
	DeliveryPanic   = "panic"
	DeliverySkipped = "skipped"
)

// Enricher outcomes recorded per handled event.
const (
	OutcomeWritten    = "written"
	OutcomeSuppressed = "suppressed"
	OutcomeUnchanged  = "unchanged"
	OutcomeRemoved    = "removed"
	OutcomeFailed     = "failed"
	OutcomeDiscarded  = "discarded"
)

// Metrics contains all engine metrics.
type Metrics struct {
	EventsPublished     *prometheus.CounterVec
	Deliveries          *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge
	SensorWrites        *prometheus.CounterVec
	EnricherEvents      *prometheus.CounterVec
	JournalErrors       prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "events_published_total",
				Help:      "Sensor events published to the bus",
			},
			[]string{"sensor"},
		),

		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "deliveries_total",
				Help:      "Listener deliveries by outcome",
			},
			[]string{"outcome"},
		),

		ActiveSubscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "subscriptions",
				Help:      "Live subscriptions",
			},
		),

		SensorWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "sensor_writes_total",
				Help:      "Successful attribute writes per sensor",
			},
			[]string{"entity", "sensor"},
		),

		EnricherEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "enricher",
				Name:      "events_total",
				Help:      "Events handled by enrichers, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		JournalErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "journal",
				Name:      "errors_total",
				Help:      "Failed journal writes",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsPublished,
			m.Deliveries,
			m.ActiveSubscriptions,
			m.SensorWrites,
			m.EnricherEvents,
			m.JournalErrors,
		)
	}
	return m
}
