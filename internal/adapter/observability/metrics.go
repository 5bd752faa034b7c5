package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_published_total",
			Help: "Total number of messages published by event type",
		},
		[]string{"event_type"},
	)
	MessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_consumed_total",
			Help: "Total number of messages consumed by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)
	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_handler_duration_seconds",
			Help:    "Message handler duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"queue"},
	)
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_retries_total",
			Help: "Total number of retry republishes by event type",
		},
		[]string{"event_type"},
	)
	DeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dead_lettered_total",
			Help: "Total number of messages rejected to the dead-letter exchange",
		},
		[]string{"queue"},
	)
	PartsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_parts_completed_total",
			Help: "Total number of PDF parts converted successfully",
		},
	)
	PartsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_parts_failed_total",
			Help: "Total number of PDF parts that failed conversion",
		},
	)
	MergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_merges_total",
			Help: "Total number of merge operations by outcome",
		},
		[]string{"outcome"},
	)
	BrokerReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_broker_reconnects_total",
			Help: "Total number of broker reconnect attempts",
		},
	)
	DeadLetterQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_dead_letter_queue_depth",
			Help: "Messages sitting in the dead-letter queue, sampled by the heartbeat",
		},
	)
)

// InitMetrics registers all pipeline metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(MessagesPublishedTotal)
	prometheus.MustRegister(MessagesConsumedTotal)
	prometheus.MustRegister(HandlerDuration)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(DeadLetteredTotal)
	prometheus.MustRegister(PartsCompletedTotal)
	prometheus.MustRegister(PartsFailedTotal)
	prometheus.MustRegister(MergesTotal)
	prometheus.MustRegister(BrokerReconnectsTotal)
	prometheus.MustRegister(DeadLetterQueueDepth)
}
