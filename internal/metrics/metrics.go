package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Detector metrics
var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvoir_events_total",
			Help: "Filesystem notifications evaluated by the completion detector",
		},
		[]string{"decision"}, // "ignored", "pending", "submitted", "deferred"
	)

	PendingFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbvoir_pending_files",
			Help: "Files waiting for their quiet period to elapse",
		},
	)

	PromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbvoir_promotions_total",
			Help: "Pending files promoted to import by the poll loop",
		},
	)

	EvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbvoir_pending_evictions_total",
			Help: "Pending files dropped because they disappeared before completing",
		},
	)
)

// Import metrics
var (
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvoir_imports_total",
			Help: "Import dispatches by outcome",
		},
		[]string{"outcome"}, // "imported", "skipped", "already_processed", "gone", "failed"
	)

	ImportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbvoir_import_duration_seconds",
			Help:    "Wall time of beets import runs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbvoir_dispatch_queue_depth",
			Help: "Files queued or in flight on the dispatch worker",
		},
	)

	DispatchRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbvoir_dispatch_rejected_total",
			Help: "Submissions refused because the dispatch queue was full",
		},
	)

	ProcessedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbvoir_processed_records",
			Help: "Entries held by the processed record",
		},
	)
)

// Rescan metrics
var (
	RescansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvoir_rescans_total",
			Help: "Jellyfin library refresh attempts by result",
		},
		[]string{"result"}, // "ok", "failed", "not_configured", "disabled"
	)
)

// HTTP API metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvoir_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbvoir_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Maintenance metrics
var (
	MaintenanceRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvoir_maintenance_runs_total",
			Help: "Scheduled maintenance runs by result",
		},
		[]string{"result"},
	)

	PrunedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbvoir_pruned_records_total",
			Help: "Processed record entries removed by retention",
		},
	)
)

// Decision and outcome label values.
const (
	ResultOK            = "ok"
	ResultFailed        = "failed"
	ResultNotConfigured = "not_configured"
	ResultDisabled      = "disabled"
)
