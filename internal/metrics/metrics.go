package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scheduler metrics
var (
	SchedulerPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgview_scheduler_passes_total",
			Help: "Scheduler passes by outcome (ran, saturated, empty)",
		},
		[]string{"outcome"},
	)

	TasksDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgview_tasks_dispatched_total",
			Help: "Load tasks dispatched, by the work that triggered them",
		},
		[]string{"work"},
	)

	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_tasks_in_flight",
			Help: "Load tasks submitted to the pool and not yet finished",
		},
	)

	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imgview_task_duration_seconds",
			Help:    "Wall time of a load task from start to completion",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	CurrentIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_current_index",
			Help: "Index of the entry currently being viewed",
		},
	)
)

// Load metrics
var (
	LoadResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgview_load_results_total",
			Help: "Load task phase results",
		},
		[]string{"phase", "status"},
	)

	DecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgview_decode_duration_seconds",
			Help:    "Image decode duration by format",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"format"},
	)

	ResizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imgview_thumbnail_resize_duration_seconds",
			Help:    "Time spent downscaling a decoded image to thumbnail size",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	BytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imgview_bytes_read_total",
			Help: "Bytes read from image files",
		},
	)
)

// Thumbnail store metrics
var (
	ThumbnailCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imgview_thumbnail_cache_hits_total",
			Help: "Thumbnail store lookups that found a row",
		},
	)

	ThumbnailCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imgview_thumbnail_cache_misses_total",
			Help: "Thumbnail store lookups that found nothing",
		},
	)

	ThumbnailStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgview_thumbnail_store_errors_total",
			Help: "Thumbnail store failures that were logged and swallowed",
		},
		[]string{"operation"},
	)

	ThumbnailStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgview_thumbnail_store_duration_seconds",
			Help:    "Thumbnail store operation duration, including lock wait",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"operation"},
	)

	ThumbnailStoreRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_thumbnail_store_rows",
			Help: "Rows in the thumbnail store",
		},
	)

	ThumbnailStoreBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_thumbnail_store_bytes",
			Help: "Total encoded thumbnail bytes in the store",
		},
	)
)

// Collection metrics
var (
	CollectionEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_collection_entries",
			Help: "Entries in the loaded collection",
		},
	)

	FullImagesResident = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_full_images_resident",
			Help: "Entries currently holding a full-resolution decode",
		},
	)

	ThumbnailsResident = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_thumbnails_resident",
			Help: "Entries currently holding a thumbnail",
		},
	)

	EntriesWithError = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_entries_with_error",
			Help: "Entries whose last read or decode failed",
		},
	)

	ScanBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imgview_scan_batches_total",
			Help: "Batches of discovered files delivered by the scanner",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgview_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgview_filesystem_operation_errors_total",
			Help: "Filesystem operations that returned an error",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgview_filesystem_retry_attempts_total",
			Help: "Retries after a stale NFS file handle",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgview_filesystem_retry_failures_total",
			Help: "Operations that still failed after all retries",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured limit",
		},
	)

	MemoryThrottled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgview_memory_throttled",
			Help: "1 while prefetching is throttled by memory pressure",
		},
	)
)

// Status server metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgview_http_requests_total",
			Help: "Status server requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgview_http_request_duration_seconds",
			Help:    "Status server request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
