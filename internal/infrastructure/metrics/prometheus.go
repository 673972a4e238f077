// Package metrics provides Prometheus metrics for observability, kept from
// the teacher's internal/infrastructure/metrics/prometheus.go and extended
// with the components this spec adds (browser pool, upload queue,
// downloader, reconciler).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scrapegate"

var (
	// CacheOperationsTotal tracks cache operations (get, set, delete).
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// BrowserPoolBrowsers tracks live browser instances.
	BrowserPoolBrowsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_pool_browsers",
			Help:      "Number of live browser instances in the pool",
		},
	)

	// BrowserPoolPages tracks pages currently on loan.
	BrowserPoolPages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_pool_pages",
			Help:      "Number of pages currently on loan from the pool",
		},
	)

	// BrowserRotationsTotal counts browser rotations by trigger.
	BrowserRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_rotations_total",
			Help:      "Total number of browser rotations",
		},
		[]string{"trigger"},
	)

	// UploadQueueItems tracks queue depth by state.
	UploadQueueItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_queue_items",
			Help:      "Number of upload queue items by state",
		},
		[]string{"state"},
	)

	// DownloadsTotal counts downloader outcomes.
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total number of media downloads attempted",
		},
		[]string{"kind", "outcome"},
	)

	// UploadsTotal counts object-store upload outcomes.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of object store uploads attempted",
		},
		[]string{"outcome"},
	)

	// ReconcileRunsTotal counts reconciliation runs.
	ReconcileRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Total number of storage reconciliation runs",
		},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis  = "redis"
	CacheTypeScrape = "scrape"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Browser rotation trigger constants.
const (
	RotationTriggerAge        = "age"
	RotationTriggerMaxPages   = "max_pages"
	RotationTriggerSweep      = "sweep"
	RotationTriggerDisconnect = "disconnected"
)

// Download kind constants.
const (
	DownloadKindDirect = "direct"
	DownloadKindHLS    = "hls"
)

// Outcome constants shared by downloads/uploads.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
