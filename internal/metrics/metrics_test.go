package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == name {
			return fam
		}
	}
	return nil
}

func TestMetrics_RegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnectorRequests.WithLabelValues("hmacpay", "success").Inc()
	m.ConnectorRequests.WithLabelValues("hmacpay", "success").Inc()
	m.ConnectorRequests.WithLabelValues("hmacpay", "error").Inc()
	m.DispatchDecisions.WithLabelValues("legacy").Inc()

	fam := gather(t, reg, "switch_connector_requests_total")
	require.NotNil(t, fam)
	require.Len(t, fam.GetMetric(), 2)

	byOutcome := map[string]float64{}
	for _, metric := range fam.GetMetric() {
		var outcome string
		for _, label := range metric.GetLabel() {
			if label.GetName() == "outcome" {
				outcome = label.GetValue()
			}
		}
		byOutcome[outcome] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, float64(2), byOutcome["success"])
	assert.Equal(t, float64(1), byOutcome["error"])

	decisions := gather(t, reg, "switch_dispatch_decisions_total")
	require.NotNil(t, decisions)
	assert.Equal(t, float64(1), decisions.GetMetric()[0].GetCounter().GetValue())
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
