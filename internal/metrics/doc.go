// Package metrics provides Prometheus instrumentation for atelier.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "atelier_". Serve them with promhttp.Handler():
//
//	router.Handle("/metrics", promhttp.Handler())
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal: requests by method, route template and status
//   - HTTPRequestDuration: request latency by method and route template
//   - HTTPRequestsInFlight: requests currently being served
//
// ## Database Metrics
//   - DBQueryTotal, DBQueryDuration: catalog queries by operation
//   - DBConnectionsOpen: open SQLite connections
//
// ## Scanner Metrics
//   - ScansTotal: scans by outcome (success, root_unavailable, error)
//   - ScanDuration, ScanLastRunTimestamp
//   - ScanFilesTotal: files added, updated or skipped
//   - ScansInProgress
//
// ## Query and Bulk Metrics
//   - QueryDuration by kind (page, tags, matches), QueryResultsTotal
//   - QueryWatchers: live query subscriptions
//   - BulkOperationsTotal, BulkEntriesChanged, BulkChunksTotal
//
// ## Catalog Gauges
//
// CatalogEntriesTotal, CatalogMountsTotal, CatalogFavoritesTotal and
// CatalogTagsTotal are refreshed by a [Collector] from a [StatsProvider]:
//
//	collector := metrics.NewCollector(db, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// ## Filesystem Metrics
//
// Operation latency, errors and stale handle retries, recorded through the
// observer returned by [NewFilesystemObserver].
//
// # Prometheus Queries
//
// Request rate by endpoint:
//
//	sum(rate(atelier_http_requests_total[5m])) by (path)
//
// Scan failure ratio:
//
//	sum(rate(atelier_scans_total{status!="success"}[1h])) / sum(rate(atelier_scans_total[1h]))
//
// P95 filter latency:
//
//	histogram_quantile(0.95, sum(rate(atelier_query_duration_seconds_bucket{kind="page"}[5m])) by (le))
package metrics
