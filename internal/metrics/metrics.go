package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atelier_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_db_queries_total",
			Help: "Total number of catalog database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atelier_db_query_duration_seconds",
			Help:    "Catalog database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Scanner metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_scans_total",
			Help: "Total number of mount scans by outcome",
		},
		[]string{"status"}, // "success", "root_unavailable", "error"
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atelier_scan_duration_seconds",
			Help:    "Duration of a mount scan in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	ScanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_scan_files_total",
			Help: "Files seen by scans, by outcome",
		},
		[]string{"outcome"}, // "added", "updated", "skipped"
	)

	ScansInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_scans_in_progress",
			Help: "Number of mount scans currently running",
		},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_scan_last_run_timestamp",
			Help: "Unix time the last scan finished",
		},
	)
)

// Query metrics
var (
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atelier_query_duration_seconds",
			Help:    "Filter query evaluation time in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"kind"}, // "page", "tags", "matches"
	)

	QueryResultsTotal = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atelier_query_matches",
			Help:    "Number of entries matching a filter before pagination",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	QueryWatchers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_query_watchers",
			Help: "Number of live query subscriptions",
		},
	)
)

// Bulk edit metrics
var (
	BulkOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_bulk_operations_total",
			Help: "Total number of bulk edit operations",
		},
		[]string{"action", "status"},
	)

	BulkEntriesChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_bulk_entries_changed_total",
			Help: "Entries written by bulk edit operations",
		},
		[]string{"action"},
	)

	BulkChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_bulk_chunks_total",
			Help: "Chunks committed by bulk edit operations",
		},
	)
)

// Catalog gauges
var (
	CatalogEntriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_catalog_entries",
			Help: "Number of cataloged entries",
		},
	)

	CatalogMountsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_catalog_mounts",
			Help: "Number of registered mounts",
		},
	)

	CatalogFavoritesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_catalog_favorites",
			Help: "Number of favorite entries",
		},
	)

	CatalogTagsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_catalog_tags",
			Help: "Number of distinct tags",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailsStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_thumbnails_stored_total",
			Help: "Thumbnails processed by outcome",
		},
		[]string{"status"}, // "success", "error_decode", "error_write"
	)

	ThumbnailDecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_thumbnail_decode_by_format_total",
			Help: "Decoded thumbnail sources by image format",
		},
		[]string{"format"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atelier_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_filesystem_operation_errors_total",
			Help: "Failed filesystem operations",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_filesystem_retry_attempts_total",
			Help: "Retries after stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_filesystem_retry_success_total",
			Help: "Operations that succeeded after a retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen",
		},
		[]string{"operation", "volume"},
	)
)

// Streaming metrics
var (
	StreamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_stream_bytes_total",
			Help: "Total media file bytes written to clients",
		},
	)

	StreamTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_stream_timeouts_total",
			Help: "Total media responses cut off by a write timeout or duration cap",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_memory_usage_ratio",
			Help: "Heap allocation as a share of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_memory_paused",
			Help: "Whether scans are paused for memory pressure (1 = paused)",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_memory_pauses_total",
			Help: "Total number of times scans were paused for memory pressure",
		},
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atelier_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

// Duration probe metrics
var (
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_probes_total",
			Help: "Total number of media duration probes",
		},
		[]string{"result"},
	)

	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atelier_probe_duration_seconds",
			Help:    "Time spent running the media prober",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)
