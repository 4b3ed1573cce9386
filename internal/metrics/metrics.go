package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtctel_events_total",
			Help: "Total number of events processed, by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	EventBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rtctel_event_bytes_total",
			Help: "Total bytes of webhook payload data received",
		},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtctel_batch_size",
			Help:    "Number of events per webhook delivery",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// Storage metrics
	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtctel_storage_duration_seconds",
			Help:    "Duration of persistence operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rtctel_storage_errors_total",
			Help: "Total number of persistence failures",
		},
	)

	// Optional-feature writes (slowlink)
	SlowlinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtctel_slowlink_writes_total",
			Help: "Slowlink write attempts, by outcome",
		},
		[]string{"status"},
	)

	// SIP correlation metrics
	SipUpserts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rtctel_sip_upserts_total",
			Help: "Total number of SIP call correlation upserts",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtctel_rate_limit_hits_total",
			Help: "Total number of webhook requests rejected by the rate limiter",
		},
		[]string{"key"},
	)

	// Dead letter queue metrics
	DLQWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rtctel_dlq_writes_total",
			Help: "Total number of failed events routed to the dead letter queue",
		},
	)
)
