package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for MessagesTotal.
const (
	ResultInserted  = "inserted"
	ResultDuplicate = "duplicate"
	ResultSkipped   = "skipped"
	ResultInvalid   = "invalid"
	ResultFailed    = "failed"
)

var (
	// Ingester metrics
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedgen_ingest_messages_received_total",
			Help: "Total number of firehose frames read",
		},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedgen_ingest_messages_total",
			Help: "Firehose frames by outcome",
		},
		[]string{"result"},
	)

	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedgen_ingest_reconnects_total",
			Help: "Total number of firehose reconnect attempts",
		},
	)

	InsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedgen_ingest_insert_duration_seconds",
			Help:    "Duration of event inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestCursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedgen_ingest_cursor_time_us",
			Help: "Resume cursor of the firehose subscription",
		},
	)

	// Poller metrics
	PollerBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedgen_poller_batches_total",
			Help: "Total number of non-empty batches processed",
		},
	)

	PollerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedgen_poller_events_total",
			Help: "Events seen by the poller, by classification",
		},
		[]string{"classification"},
	)

	PollerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedgen_poller_errors_total",
			Help: "Poller iteration failures by stage",
		},
		[]string{"stage"},
	)

	PollerCursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedgen_poller_cursor_time_us",
			Help: "Sequence of the poller cursor",
		},
	)

	ClassifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedgen_poller_classify_duration_seconds",
			Help:    "Duration of classifier calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Read API metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedgen_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedgen_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedgen_http_rate_limit_hits_total",
			Help: "Total number of rate limited requests",
		},
	)
)
