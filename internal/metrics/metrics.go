// Package metrics exposes prometheus collectors for extraction runs and
// summarises the performance history.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/claimcheck/internal/model"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - claimcheck_backend_attempts_total{backend,status}
//   - claimcheck_backend_attempt_duration_seconds{backend}
//   - claimcheck_runs_total{archetype,partial}
//   - claimcheck_run_confidence
//   - claimcheck_validations_total{outcome}
type Metrics struct {
	BackendAttempts *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	Runs            *prometheus.CounterVec
	RunConfidence   prometheus.Histogram
	Validations     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. Nothing is
// registered globally, so tests and batch workers can each own a registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BackendAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimcheck_backend_attempts_total",
				Help: "Backend attempts by outcome",
			},
			[]string{"backend", "status"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claimcheck_backend_attempt_duration_seconds",
				Help:    "Duration of backend attempts in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~3m
			},
			[]string{"backend"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimcheck_runs_total",
				Help: "Completed extraction runs",
			},
			[]string{"archetype", "partial"},
		),
		RunConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "claimcheck_run_confidence",
				Help:    "Global confidence of extraction runs",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimcheck_validations_total",
				Help: "Normative validations by outcome",
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.BackendAttempts, m.AttemptDuration, m.Runs, m.RunConfidence, m.Validations)
	}
	return m
}

// RecordAttempt records one backend attempt.
func (m *Metrics) RecordAttempt(a model.BackendAttempt) {
	if m == nil {
		return
	}
	m.BackendAttempts.WithLabelValues(a.Backend, string(a.Status)).Inc()
	if a.Status != model.AttemptSkipped {
		m.AttemptDuration.WithLabelValues(a.Backend).Observe(a.Duration.Seconds())
	}
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(archetype model.Archetype, res *model.ExtractionResult) {
	if m == nil || res == nil {
		return
	}
	m.Runs.WithLabelValues(string(archetype), strconv.FormatBool(res.Partial)).Inc()
	m.RunConfidence.Observe(res.Confidence)
}

// RecordValidation records a rule engine verdict. outcome is "valid",
// "invalid" or "dialog".
func (m *Metrics) RecordValidation(outcome string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(outcome).Inc()
}
