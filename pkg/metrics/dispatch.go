package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records assignment outcomes and queue health. A nil
// *DispatchMetrics is valid and records nothing.
type DispatchMetrics struct {
	assignments *prometheus.CounterVec
	retries     prometheus.Counter
	duration    *prometheus.HistogramVec
	healthScore prometheus.Gauge
	anomalies   *prometheus.GaugeVec
	repairs     *prometheus.CounterVec
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Assignment attempts by path and outcome.",
	}, []string{"path", "outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_assign_retries_total",
		Help: "Assignment transactions retried after a serialization conflict.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_assign_duration_seconds",
		Help:    "Duration of assign calls in seconds, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
	healthScore := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_queue_health_score",
		Help: "Latest queue health score (0-100).",
	})
	anomalies := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_queue_anomalies",
		Help: "Latest anomaly counts found by the queue audit.",
	}, []string{"kind"})
	repairs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_repairs_total",
		Help: "Queue repair operations executed.",
	}, []string{"operation"})
	reg.MustRegister(assignments, retries, duration, healthScore, anomalies, repairs)
	return &DispatchMetrics{
		assignments: assignments,
		retries:     retries,
		duration:    duration,
		healthScore: healthScore,
		anomalies:   anomalies,
		repairs:     repairs,
	}
}

// ObserveAssign records one assign call.
func (m *DispatchMetrics) ObserveAssign(path, outcome string, duration time.Duration) {
	if m == nil || m.assignments == nil {
		return
	}
	m.assignments.WithLabelValues(normalizeLabel(path), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(path)).Observe(duration.Seconds())
}

func (m *DispatchMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

// SetHealth exports the latest audit result.
func (m *DispatchMetrics) SetHealth(score, invalid, duplicate, unprocessed int) {
	if m == nil || m.healthScore == nil {
		return
	}
	m.healthScore.Set(float64(score))
	m.anomalies.WithLabelValues("invalid_position").Set(float64(invalid))
	m.anomalies.WithLabelValues("duplicate_position").Set(float64(duplicate))
	m.anomalies.WithLabelValues("unprocessed_booking").Set(float64(unprocessed))
}

func (m *DispatchMetrics) IncRepair(operation string) {
	if m == nil || m.repairs == nil {
		return
	}
	m.repairs.WithLabelValues(normalizeLabel(operation)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
