package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Catalog store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_db_queries_total",
			Help: "Total number of catalog store queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_db_query_duration_seconds",
			Help:    "Catalog store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_db_transaction_duration_seconds",
			Help:    "Batch transaction duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"}, // "commit", "rollback"
	)

	SchemaRecreations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_schema_recreations_total",
			Help: "Times the catalog file was destructively recreated after a schema mismatch",
		},
	)
)

// Scanner metrics
var (
	ScanRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_scan_runs_total",
			Help: "Total number of folder scans started",
		},
	)

	ScanFilesImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_scan_files_imported_total",
			Help: "Media files imported by the scanner",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_library_scan_duration_seconds",
			Help:    "Duration of completed folder scans",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)
)

// Change watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_watcher_events_total",
			Help: "Filesystem events applied to the catalog",
		},
		[]string{"action"}, // "added", "removed", "renamed", "updated", "dropped"
	)

	WatcherActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_watcher_active",
			Help: "Whether a folder watch loop is currently running",
		},
	)
)

// HTTP server metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)
)

// Artifact generator metrics
var (
	ArtifactsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_artifacts_generated_total",
			Help: "Derived artifacts generated",
		},
		[]string{"artifact", "status"}, // artifact: "thumbnail", "waveform"
	)

	ArtifactDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_artifact_duration_seconds",
			Help:    "Per-item artifact generation duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
		[]string{"artifact"},
	)

	GenerationRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_generation_running",
			Help: "Whether an artifact generation pool is currently running",
		},
	)
)
