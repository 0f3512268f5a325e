package metrics

// InitializeMetrics pre-populates the expected label combinations so that
// every series is exported from the first scrape.
func InitializeMetrics() {
	for _, outcome := range []string{"ran", "saturated", "empty"} {
		SchedulerPassesTotal.WithLabelValues(outcome)
	}

	for _, work := range []string{"load_full", "create_thumbnail", "unload"} {
		TasksDispatchedTotal.WithLabelValues(work)
	}

	for _, phase := range []string{"read", "decode", "thumbnail", "unload"} {
		LoadResultsTotal.WithLabelValues(phase, "success")
		LoadResultsTotal.WithLabelValues(phase, "error")
	}
	LoadResultsTotal.WithLabelValues("thumbnail", "cache_hit")

	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "tiff", "unknown"} {
		DecodeDuration.WithLabelValues(format)
	}

	for _, op := range []string{"get", "insert", "delete", "stats"} {
		ThumbnailStoreErrors.WithLabelValues(op)
		ThumbnailStoreDuration.WithLabelValues(op)
	}

	for _, op := range []string{"read", "stat", "readdir"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemOperationErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}
}
