// Package metrics records run outcomes in a Prometheus registry and writes
// them in the node exporter textfile-collector format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"idecrypt/internal/decrypt"
)

const namespace = "idecrypt"

// Outcome label values for RecordsTotal.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeErrored   = "errored"
)

// RunMetrics holds the collectors for decryption runs on a private registry.
type RunMetrics struct {
	registry *prometheus.Registry

	// RecordsTotal counts records by terminal outcome.
	// Labels: outcome (processed, skipped, errored)
	RecordsTotal *prometheus.CounterVec

	// BytesTotal counts declared bytes of processed records.
	BytesTotal prometheus.Counter

	// RunDurationSeconds is the wall-clock duration of the last run.
	RunDurationSeconds prometheus.Gauge

	// LastRunTimestampSeconds is the Unix time the last run finished.
	LastRunTimestampSeconds prometheus.Gauge
}

// NewRunMetrics creates RunMetrics registered on a fresh registry.
func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &RunMetrics{
		registry: reg,
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records that reached a terminal outcome, by outcome",
		}, []string{"outcome"}),
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Declared bytes of successfully materialized records",
		}),
		RunDurationSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last decryption run in seconds",
		}),
		LastRunTimestampSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last decryption run finished",
		}),
	}

	for _, outcome := range []string{OutcomeProcessed, OutcomeSkipped, OutcomeErrored} {
		m.RecordsTotal.WithLabelValues(outcome)
	}
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe adds the counts of report.
func (m *RunMetrics) Observe(report *decrypt.Report) {
	if report == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(OutcomeProcessed).Add(float64(report.Processed))
	m.RecordsTotal.WithLabelValues(OutcomeSkipped).Add(float64(report.Skipped))
	m.RecordsTotal.WithLabelValues(OutcomeErrored).Add(float64(report.Errored))
	m.BytesTotal.Add(float64(report.Bytes))
	m.RunDurationSeconds.Set(report.Duration.Seconds())

	finished := report.StartedAt.Add(report.Duration)
	m.LastRunTimestampSeconds.Set(float64(finished.UnixNano()) / 1e9)
}

// WriteTextfile writes the registry to path atomically.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
