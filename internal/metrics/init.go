package metrics

// InitializeMetrics pre-populates the expected label combinations so every
// series is exported from the first scrape.
func InitializeMetrics() {
	for _, status := range []string{"success", "root_unavailable", "error"} {
		ScansTotal.WithLabelValues(status)
	}
	for _, outcome := range []string{"added", "updated", "skipped"} {
		ScanFilesTotal.WithLabelValues(outcome)
	}
	for _, kind := range []string{"page", "tags", "matches"} {
		QueryDuration.WithLabelValues(kind)
	}
	for _, status := range []string{"success", "error_decode", "error_write"} {
		ThumbnailsStoredTotal.WithLabelValues(status)
	}
	for _, result := range []string{"ok", "no_duration", "error"} {
		ProbesTotal.WithLabelValues(result)
	}

	volumes := []string{"library", "cache", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "readdir", "open"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}
}
