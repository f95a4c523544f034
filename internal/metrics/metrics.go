// Package metrics mirrors a snapshot of ReducerState into Prometheus
// gauges and dumps them to a local textfile-collector file on disk.
// This is intentionally never served over HTTP: sampled state is never
// exposed over a network, and that applies to metrics as much as to
// state.json itself. Constructing a Registry is optional and happens
// only when diagnostics mode is on.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
)

// Registry holds the gauges this monitor reports and the private
// prometheus.Registry they are bound to.
type Registry struct {
	reg *prometheus.Registry

	pollCount            prometheus.Gauge
	failureCount         prometheus.Gauge
	consecutiveFailures  prometheus.Gauge
	blockedUntilMS       prometheus.Gauge
	secondaryConsecutive prometheus.Gauge
	bucketTotalUsed      *prometheus.GaugeVec
	bucketWindowsCrossed *prometheus.GaugeVec
	bucketAnomalies      *prometheus.GaugeVec
	bucketLimit          *prometheus.GaugeVec
}

// New builds a fresh, independent Registry. Namespace/subsystem follow
// this codebase's existing metrics-manager convention.
func New() *Registry {
	const namespace = "ratewatch"

	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		pollCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "poll_count", Help: "Total polls issued by this job.",
		}),
		failureCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "failure_count", Help: "Total non-rate-limit failures.",
		}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "consecutive_non_ratelimit_failures", Help: "Current consecutive non-rate-limit failure streak.",
		}),
		blockedUntilMS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "blocked_until_ms", Help: "Epoch ms until which polling is gated, 0 if not blocked.",
		}),
		secondaryConsecutive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "secondary_consecutive", Help: "Consecutive secondary rate-limit hits.",
		}),
		bucketTotalUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bucket_total_used", Help: "Cumulative API calls attributed to a bucket this job.",
		}, []string{"bucket"}),
		bucketWindowsCrossed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bucket_windows_crossed", Help: "Confirmed quota window resets observed for a bucket.",
		}, []string{"bucket"}),
		bucketAnomalies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bucket_anomalies", Help: "Unreconciled sample-pair transitions for a bucket.",
		}, []string{"bucket"}),
		bucketLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bucket_limit", Help: "Most recently observed limit for a bucket.",
		}, []string{"bucket"}),
	}

	reg.MustRegister(
		m.pollCount, m.failureCount, m.consecutiveFailures, m.blockedUntilMS, m.secondaryConsecutive,
		m.bucketTotalUsed, m.bucketWindowsCrossed, m.bucketAnomalies, m.bucketLimit,
	)
	return m
}

// Observe sets every gauge from a ReducerState snapshot.
func (m *Registry) Observe(state *model.ReducerState) {
	m.pollCount.Set(float64(state.PollCount))
	m.failureCount.Set(float64(state.FailureCount))
	m.consecutiveFailures.Set(float64(state.ConsecutiveNonRateLimitFailures))
	m.secondaryConsecutive.Set(float64(state.RateLimitControl.SecondaryConsecutive))

	if state.RateLimitControl.BlockedUntilMS != nil {
		m.blockedUntilMS.Set(float64(*state.RateLimitControl.BlockedUntilMS))
	} else {
		m.blockedUntilMS.Set(0)
	}

	for name, b := range state.Buckets {
		m.bucketTotalUsed.WithLabelValues(name).Set(float64(b.TotalUsed))
		m.bucketWindowsCrossed.WithLabelValues(name).Set(float64(b.WindowsCrossed))
		m.bucketAnomalies.WithLabelValues(name).Set(float64(b.Anomalies))
		m.bucketLimit.WithLabelValues(name).Set(float64(b.Limit))
	}
}

// WriteTextfile drops a node-exporter-style .prom file at path. Never
// called from anything that would make it reachable over the network.
func (m *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
