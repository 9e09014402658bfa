package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/testforge/test-orchestrator/types"
)

const (
	MetricsNamespace = "orchestrator"
)

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_results_total",
		Help:      "Terminal test results by status",
	}, []string{
		"run_id",
		"status",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Completed orchestration runs by classification",
	}, []string{
		"classification",
	})

	runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of orchestration runs",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	runTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests",
		Help:      "Per-run aggregate counts from the last finalized report",
	}, []string{
		"run_id",
		"status",
	})

	concurrencyLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "concurrency_limit",
		Help:      "Current adaptive worker-slot ceiling",
	})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "active_workers",
		Help:      "Execution slots currently held",
	})
)

// RecordError increments the counter for a named error condition.
func RecordError(name string) {
	errorsTotal.WithLabelValues(name).Inc()
}

// RecordTestResult counts one terminal test result.
func RecordTestResult(runID, status string) {
	testResultsTotal.WithLabelValues(runID, status).Inc()
}

// RecordRun records a finalized run's classification, counts and duration.
func RecordRun(runID, classification string, stats types.ReportStats, wallClock time.Duration) {
	runsTotal.WithLabelValues(classification).Inc()
	runDurationSeconds.Observe(wallClock.Seconds())
	runTests.WithLabelValues(runID, "passed").Set(float64(stats.Passed))
	runTests.WithLabelValues(runID, "failed").Set(float64(stats.Failed))
	runTests.WithLabelValues(runID, "timeout").Set(float64(stats.TimedOut))
	runTests.WithLabelValues(runID, "cancelled").Set(float64(stats.Cancelled))
	runTests.WithLabelValues(runID, "skipped").Set(float64(stats.Skipped))
}

// SetConcurrencyLimit reports the adaptive limit currently in effect.
func SetConcurrencyLimit(n int) {
	concurrencyLimit.Set(float64(n))
}

// SetActiveWorkers reports the number of held execution slots.
func SetActiveWorkers(n int) {
	activeWorkers.Set(float64(n))
}
