package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and gauges for the analysis
// pipeline.
type Metrics struct {
	SignsImported  prometheus.Counter
	SignsEvaluated prometheus.Counter
	SignsSkipped   prometheus.Counter
	ParseFallbacks prometheus.Counter
	QueriesTotal   prometheus.Counter

	JobsSubmitted prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsCancelled prometheus.Counter
	JobsRunning   prometheus.Gauge

	AnalysisDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		SignsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkscan",
			Name:      "signs_imported_total",
			Help:      "Total signs persisted from feed imports.",
		}),
		SignsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkscan",
			Name:      "signs_evaluated_total",
			Help:      "Total signs evaluated across analyses.",
		}),
		SignsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkscan",
			Name:      "signs_skipped_total",
			Help:      "Total signs skipped for unresolvable or mismatched geometry.",
		}),
		ParseFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkscan",
			Name:      "parse_fallbacks_total",
			Help:      "Total signs whose description fell back to an unclassified rule.",
		}),
		QueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkscan",
			Name:      "queries_total",
			Help:      "Total point-in-time parking queries served.",
		}),
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkscan",
			Name:      "jobs_submitted_total",
			Help:      "Total analysis jobs accepted.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkscan",
			Name:      "jobs_completed_total",
			Help:      "Total analysis jobs that finished successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkscan",
			Name:      "jobs_failed_total",
			Help:      "Total analysis jobs that failed, cancellations excluded.",
		}),
		JobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkscan",
			Name:      "jobs_cancelled_total",
			Help:      "Total analysis jobs cancelled by callers.",
		}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parkscan",
			Name:      "jobs_running",
			Help:      "Number of analysis jobs currently executing.",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parkscan",
			Name:      "analysis_duration_seconds",
			Help:      "Duration of a complete area analysis.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SignsImported,
		m.SignsEvaluated,
		m.SignsSkipped,
		m.ParseFallbacks,
		m.QueriesTotal,
		m.JobsSubmitted,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsCancelled,
		m.JobsRunning,
		m.AnalysisDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
