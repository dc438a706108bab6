package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsEnqueued tracks requests accepted into the call queue
	EventsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_enqueued_total",
			Help: "Total number of requests accepted for delivery",
		},
		[]string{"endpoint"},
	)

	// EventsDelivered tracks requests confirmed by the upstream
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_delivered_total",
			Help: "Total number of requests delivered upstream",
		},
		[]string{"endpoint"},
	)

	// EventsDropped tracks requests discarded without delivery
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Total number of requests dropped without delivery",
		},
		[]string{"endpoint", "reason"},
	)

	// RetriesScheduled tracks requests placed into the retry store
	RetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retries_scheduled_total",
			Help: "Total number of retry attempts scheduled",
		},
		[]string{"endpoint"},
	)

	// BatchSplits tracks batches decomposed into singletons after rejection
	BatchSplits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_batch_splits_total",
			Help: "Total number of batches split into singleton retries",
		},
		[]string{"endpoint"},
	)

	// UpstreamCalls tracks outgoing network calls by outcome
	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_calls_total",
			Help: "Total number of upstream delivery calls",
		},
		[]string{"endpoint", "outcome"},
	)

	// BatchSize tracks the size of formed batches
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_batch_size",
			Help:    "Number of requests per formed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"endpoint"},
	)

	// DeliveryLatency tracks upstream call latency
	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_delivery_latency_seconds",
			Help:    "Upstream delivery call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// QueueDepth tracks the current call queue depth
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Current number of requests waiting in the call queue",
		},
	)

	// RetryDepth tracks the current retry store depth
	RetryDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_retry_depth",
			Help: "Current number of requests awaiting retry",
		},
	)
)

// Drop reasons used with EventsDropped.
const (
	ReasonMaxRetries = "max_retries"
	ReasonRejected   = "rejected"
)
