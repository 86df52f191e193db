package metrics

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "baton_runs_started_total",
			Help: "Total workflow executions started, including resumed ones",
		},
	)

	runsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baton_runs_finished_total",
			Help: "Total workflow executions finished by terminal status",
		},
		[]string{"status"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "baton_run_duration_seconds",
			Help:    "Wall-clock duration of workflow executions",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	steps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baton_steps_total",
			Help: "Total steps dispatched by step type and outcome",
		},
		[]string{"type", "outcome"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "baton_step_duration_seconds",
			Help:    "Duration of individual step dispatches by step type",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 9),
		},
		[]string{"type"},
	)

	persistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baton_persistence_errors_total",
			Help: "Total persistence operation errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)
)

// RecordRunStarted increments the started-run counter. Resumed executions
// count again; the counter tracks engine activity, not distinct run IDs.
func RecordRunStarted() {
	runsStarted.Inc()
}

// RecordRunFinished records a finished execution with its terminal status
// ("completed", "failed", "paused", "cancelled") and wall-clock duration.
func RecordRunFinished(status string, d time.Duration) {
	runsFinished.WithLabelValues(status).Inc()
	runDuration.Observe(d.Seconds())
}

// RecordStep records one step dispatch. outcome is "success" or "failure";
// command steps that exit non-zero count as failures even though the run
// continues.
func RecordStep(stepType string, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	steps.WithLabelValues(stepType, outcome).Inc()
	stepDuration.WithLabelValues(stepType).Observe(d.Seconds())
}

// RecordPersistenceError increments the persistence error counter.
// operation should be one of: Save, Delete, LoadAll
func RecordPersistenceError(operation, errorType string) {
	persistenceErrors.WithLabelValues(operation, errorType).Inc()
}

// ErrorTypeOf maps an error to a low-cardinality label value for
// RecordPersistenceError.
func ErrorTypeOf(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return "io_error"
	default:
		return "unknown"
	}
}
