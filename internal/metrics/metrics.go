// Package metrics holds the Prometheus instrumentation for the switch:
// connector round trips, dispatch decisions and webhook outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors so they can be registered once and passed
// explicitly to the components that record them.
type Metrics struct {
	ConnectorRequests *prometheus.CounterVec
	ConnectorLatency  *prometheus.HistogramVec
	DispatchDecisions *prometheus.CounterVec
	WebhookEvents     *prometheus.CounterVec
}

// New creates and registers the collectors on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switch_connector_requests_total",
			Help: "Connector round trips by connector and outcome.",
		}, []string{"connector", "outcome"}),
		ConnectorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switch_connector_request_duration_seconds",
			Help:    "Connector round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"connector"}),
		DispatchDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switch_dispatch_decisions_total",
			Help: "Execution-path decisions by path.",
		}, []string{"path"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switch_webhook_events_total",
			Help: "Inbound webhooks by connector and outcome.",
		}, []string{"connector", "outcome"}),
	}
	reg.MustRegister(m.ConnectorRequests, m.ConnectorLatency, m.DispatchDecisions, m.WebhookEvents)
	return m
}

// NewIsolated creates collectors on a throwaway registry, for tests and
// components that do not expose /metrics.
func NewIsolated() *Metrics {
	return New(prometheus.NewRegistry())
}
