package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)

	m.ObserveAssign("auto", "assigned", 15*time.Millisecond)
	m.ObserveAssign("auto", "assigned", 5*time.Millisecond)
	m.ObserveAssign("manual", "already_assigned", time.Millisecond)
	m.IncRetry()
	m.SetHealth(70, 1, 2, 3)
	m.IncRepair("renumber")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := labelledValue(mfs, "dispatch_assignments_total", map[string]string{"path": "auto", "outcome": "assigned"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = labelledValue(mfs, "dispatch_queue_anomalies", map[string]string{"kind": "unprocessed_booking"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	got, err = labelledValue(mfs, "dispatch_queue_health_score", nil)
	require.NoError(t, err)
	assert.Equal(t, 70.0, got)

	got, err = labelledValue(mfs, "dispatch_assign_retries_total", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = labelledValue(mfs, "dispatch_repairs_total", map[string]string{"operation": "renumber"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestNilDispatchMetricsIsSafe(t *testing.T) {
	var m *DispatchMetrics
	m.ObserveAssign("auto", "assigned", time.Second)
	m.IncRetry()
	m.SetHealth(100, 0, 0, 0)
	m.IncRepair("reset")

	unregistered := NewDispatchMetrics(nil)
	unregistered.ObserveAssign("", "", 0)
}

func labelledValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !matchesLabels(metric.GetLabel(), labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue(), nil
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue(), nil
			}
		}
		return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	for name, value := range want {
		found := false
		for _, p := range pairs {
			if p.GetName() == name && p.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
