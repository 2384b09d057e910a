// Package metrics exposes Prometheus collectors for the follower.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	fetchTotal       *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	fetchCycles      *prometheus.CounterVec
	staleDiscarded   *prometheus.CounterVec
	glucose          *prometheus.GaugeVec
	gracePeriod      prometheus.Gauge
	graceTransitions *prometheus.CounterVec
	lastReading      prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "librefollow_fetch_total",
			Help: "Upstream fetches by endpoint and result.",
		}, []string{"endpoint", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "librefollow_fetch_duration_seconds",
			Help:    "Histogram of upstream fetch durations by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		fetchCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "librefollow_fetch_cycles_total",
			Help: "Fetch cycles by trigger (start, schedule, grace_expired).",
		}, []string{"trigger"}),
		staleDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "librefollow_stale_responses_total",
			Help: "Responses discarded because a newer cycle already applied.",
		}, []string{"endpoint"}),
		glucose: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "librefollow_glucose_value",
			Help: "Latest glucose value in the configured unit.",
		}, []string{"unit"}),
		gracePeriod: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "librefollow_sensor_grace_period",
			Help: "1 while the sensor is warming up, 0 otherwise.",
		}),
		graceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "librefollow_grace_transitions_total",
			Help: "Grace period state transitions by target state.",
		}, []string{"to"}),
		lastReading: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "librefollow_last_reading_timestamp_seconds",
			Help: "Unix time of the latest measurement with a valid timestamp.",
		}),
	}

	reg.MustRegister(
		m.fetchTotal,
		m.fetchDuration,
		m.fetchCycles,
		m.staleDiscarded,
		m.glucose,
		m.gracePeriod,
		m.graceTransitions,
		m.lastReading,
	)
	return m
}

// ObserveFetch records one upstream request. result is "ok", "partial",
// "network", "malformed" or "dropped".
func (m *Metrics) ObserveFetch(endpoint, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(endpoint, result).Inc()
	m.fetchDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// CycleStarted counts a fetch cycle.
func (m *Metrics) CycleStarted(trigger string) {
	if m == nil {
		return
	}
	m.fetchCycles.WithLabelValues(trigger).Inc()
}

// StaleDiscarded counts a response superseded by a newer cycle.
func (m *Metrics) StaleDiscarded(endpoint string) {
	if m == nil {
		return
	}
	m.staleDiscarded.WithLabelValues(endpoint).Inc()
}

// SetGlucose records the latest value.
func (m *Metrics) SetGlucose(unit string, value float64, at time.Time) {
	if m == nil {
		return
	}
	m.glucose.WithLabelValues(unit).Set(value)
	if !at.IsZero() {
		m.lastReading.Set(float64(at.Unix()))
	}
}

// SetGracePeriod records a grace period transition.
func (m *Metrics) SetGracePeriod(warmingUp bool) {
	if m == nil {
		return
	}
	if warmingUp {
		m.gracePeriod.Set(1)
		m.graceTransitions.WithLabelValues("warming_up").Inc()
		return
	}
	m.gracePeriod.Set(0)
	m.graceTransitions.WithLabelValues("ready").Inc()
}
