// Package metrics provides Prometheus collectors and HTTP middleware for
// monitoring the execution broker.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// RunBuckets covers sub-second compiles up to runs that hit a generous timeout.
var RunBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

var (
	// RequestsTotal counts HTTP requests by method, route pattern and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbroker_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runbroker_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: RunBuckets,
		},
		[]string{"method", "route"},
	)

	// RunsTotal counts completed executions by result category.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbroker_runs_total",
			Help: "Executions by category",
		},
		[]string{"category"},
	)

	// RunDuration records external tool wall-clock time from spawn to exit or kill.
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runbroker_run_duration_seconds",
			Help:    "External tool wall-clock time",
			Buckets: RunBuckets,
		},
		[]string{"category"},
	)

	// RunsInFlight tracks external tool processes currently alive.
	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "runbroker_runs_in_flight",
			Help: "Live external tool processes",
		},
	)

	// QueueWait records how long requests waited at the admission gate.
	QueueWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runbroker_admission_wait_seconds",
			Help:    "Time spent waiting for an execution slot",
			Buckets: RunBuckets,
		},
	)

	// AdmissionRejectedTotal counts requests turned away because no slot freed up in time.
	AdmissionRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runbroker_admission_rejected_total",
			Help: "Requests rejected at the admission gate",
		},
	)

	// ArtifactsLive tracks source files currently present in the sandbox root.
	ArtifactsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "runbroker_artifacts_live",
			Help: "Artifacts present in the sandbox root",
		},
	)

	// ArtifactCleanupFailuresTotal counts artifact deletions that failed.
	ArtifactCleanupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runbroker_artifact_cleanup_failures_total",
			Help: "Artifact deletions that failed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		RunsTotal,
		RunDuration,
		RunsInFlight,
		QueueWait,
		AdmissionRejectedTotal,
		ArtifactsLive,
		ArtifactCleanupFailuresTotal,
	)
}
