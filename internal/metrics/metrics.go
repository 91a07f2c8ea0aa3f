package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine stage counters and histograms, partitioned by event source.

var (
	// Feed
	FeedPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "feed",
		Name:      "polls_total",
		Help:      "Total feed poll ticks",
	}, []string{"source"})

	FeedEventsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "feed",
		Name:      "events_fetched_total",
		Help:      "Total raw events fetched from the indexer feed",
	}, []string{"source"})

	FeedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "feed",
		Name:      "errors_total",
		Help:      "Total feed poll errors (after retry exhaustion)",
	}, []string{"source"})

	FeedLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smartmoney",
		Subsystem: "feed",
		Name:      "poll_duration_seconds",
		Help:      "Feed poll duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"source"})

	// Normalizer
	NormalizerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "normalizer",
		Name:      "events_total",
		Help:      "Total raw events seen by the normalizer",
	}, []string{"source"})

	NormalizerDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "normalizer",
		Name:      "dropped_total",
		Help:      "Total malformed events dropped with a normalization error",
	}, []string{"source", "reason"})

	// Aggregator
	AggregatorEventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "aggregator",
		Name:      "events_applied_total",
		Help:      "Total event applications folded into wallet state",
	}, []string{"source"})

	AggregatorDuplicates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "aggregator",
		Name:      "duplicates_total",
		Help:      "Total duplicate event ids rejected by the idempotency window",
	}, []string{"source"})

	AggregatorBatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smartmoney",
		Subsystem: "aggregator",
		Name:      "batch_duration_seconds",
		Help:      "Batch apply duration (in-memory fold plus persist tx)",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"source"})

	WalletsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "smartmoney",
		Subsystem: "aggregator",
		Name:      "wallets_tracked",
		Help:      "Number of wallet states held by the aggregator",
	})

	WhalesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "smartmoney",
		Subsystem: "aggregator",
		Name:      "whales_tracked",
		Help:      "Number of wallets currently classified as whales",
	})

	// Sync
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Total sync runs, labeled by trigger path",
	}, []string{"trigger"})

	SyncDocsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "sync",
		Name:      "documents_upserted_total",
		Help:      "Total documents upserted into the materialized store",
	})

	SyncDocErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "sync",
		Name:      "document_errors_total",
		Help:      "Total per-document sync failures (non-fatal, retried)",
	})

	SyncRunErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "sync",
		Name:      "run_errors_total",
		Help:      "Total sync runs aborted by store connectivity failures",
	})

	SyncBatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smartmoney",
		Subsystem: "sync",
		Name:      "batch_duration_seconds",
		Help:      "Sync batch duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	SyncDirtyBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "smartmoney",
		Subsystem: "sync",
		Name:      "dirty_backlog",
		Help:      "Addresses waiting in the dirty set for materialization",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Total alerts sent, by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmoney",
		Subsystem: "alerts",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by the cooldown window",
	}, []string{"channel", "type"})
)
