package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for OptionLedger.
// NewMetrics registers with the default registry and may be called once per process.
type Metrics struct {
	// --- Controller ---
	BatchesApplied  prometheus.Counter
	BatchesRejected *prometheus.CounterVec
	ActionsApplied  *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	MarginCheckDur  prometheus.Histogram
	VaultsOpened    prometheus.Counter
	VaultsSettled   prometheus.Counter
	OtokensRedeemed prometheus.Counter
	PauseState      *prometheus.GaugeVec

	// --- Core pipeline ---
	CoreSequence     prometheus.Gauge
	CoreStateHashDur prometheus.Histogram

	// --- Ingestion ---
	IngestToApply      prometheus.Histogram
	IngestThrottleWait prometheus.Histogram
	IngestParseErrors  prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	BatchSequenceGap      *prometheus.CounterVec
	BatchOutOfOrder       *prometheus.CounterVec

	// --- Channels ---
	ChannelSize          *prometheus.GaugeVec
	ChannelCapacity      *prometheus.GaugeVec
	ChannelUtilization   *prometheus.GaugeVec
	PublishDrops         prometheus.Counter
	OutcomesPublished    *prometheus.CounterVec
	OutcomePublishErrors prometheus.Counter

	// --- Persistence ---
	AuditRowsWritten prometheus.Counter
	PersistBatchSize prometheus.Histogram
	PersistBatchDur  prometheus.Histogram
	PersistErrors    *prometheus.CounterVec

	// --- Snapshots ---
	SnapshotTaken    prometheus.Counter
	SnapshotDuration prometheus.Histogram
	SnapshotLastSeq  prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	StreamClients prometheus.Gauge
	StreamDropped prometheus.Counter
}

func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01, 0.1, 1.0,
	}

	return &Metrics{
		// Controller
		BatchesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_batches_applied_total",
			Help: "Action batches committed by the controller",
		}),

		BatchesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "optionledger_batches_rejected_total",
			Help: "Action batches rolled back, by failure kind and reason code",
		}, []string{"kind", "code"}),

		ActionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "optionledger_actions_applied_total",
			Help: "Actions dispatched inside committed batches",
		}, []string{"action"}),

		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionledger_batch_duration_seconds",
			Help:    "Time to operate one batch, including rollback",
			Buckets: latencyBuckets,
		}),

		MarginCheckDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionledger_margin_check_duration_seconds",
			Help:    "End of batch margin check over every touched vault",
			Buckets: latencyBuckets,
		}),

		VaultsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_vaults_opened_total",
			Help: "Vaults opened in committed batches",
		}),

		VaultsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_vaults_settled_total",
			Help: "Vaults settled in committed batches",
		}),

		OtokensRedeemed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_redeem_actions_total",
			Help: "Redeem actions in committed batches",
		}),

		PauseState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optionledger_pause_state",
			Help: "1 while the named pause flag is set",
		}, []string{"flag"}),

		// Core pipeline
		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "optionledger_core_sequence",
			Help: "Sequence number of the last processed batch",
		}),

		CoreStateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionledger_core_state_hash_duration_seconds",
			Help:    "Time to compute the state hash",
			Buckets: latencyBuckets,
		}),

		// Ingestion
		IngestToApply: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionledger_ingest_to_apply_seconds",
			Help:    "NATS receive to batch outcome",
			Buckets: ingestBuckets,
		}),

		IngestThrottleWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionledger_ingest_throttle_wait_seconds",
			Help:    "Time spent waiting on the ingestion rate limiter",
			Buckets: ingestBuckets,
		}),

		IngestParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_ingest_parse_errors_total",
			Help: "Batch messages that could not be decoded",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "optionledger_idempotency_duplicates_total",
			Help: "Duplicate batches caught (lru/postgres)",
		}, []string{"tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "optionledger_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionledger_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		BatchSequenceGap: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "optionledger_batch_sequence_gap_total",
			Help: "Source sequence gaps",
		}, []string{"source"}),

		BatchOutOfOrder: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "optionledger_batch_out_of_order_total",
			Help: "Out-of-order rejections",
		}, []string{"source"}),

		// Channels
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optionledger_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optionledger_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optionledger_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_publish_drops_total",
			Help: "Outcome events dropped due to a full publish channel",
		}),

		OutcomesPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "optionledger_outcomes_published_total",
			Help: "Outcome events published to NATS",
		}, []string{"status"}),

		OutcomePublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_outcome_publish_errors_total",
			Help: "Outcome publishes that failed after retries or hit an open circuit",
		}),

		// Persistence
		AuditRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_audit_rows_written_total",
			Help: "Batch outcome rows written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionledger_persist_batch_size",
			Help:    "Outcomes per audit transaction",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionledger_persist_batch_duration_seconds",
			Help:    "Postgres audit transaction duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "optionledger_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		// Snapshots
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_snapshots_taken_total",
			Help: "Vault snapshots exported",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionledger_snapshot_duration_seconds",
			Help:    "Vault snapshot export duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "optionledger_snapshot_last_sequence",
			Help: "Core sequence of the latest vault snapshot",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "optionledger_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optionledger_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		StreamClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "optionledger_stream_clients",
			Help: "Connected outcome stream websocket clients",
		}),

		StreamDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "optionledger_stream_dropped_total",
			Help: "Outcome messages dropped for slow websocket clients",
		}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}

// SetPaused records a pause flag.
func (m *Metrics) SetPaused(flag string, paused bool) {
	v := 0.0
	if paused {
		v = 1
	}
	m.PauseState.WithLabelValues(flag).Set(v)
}
