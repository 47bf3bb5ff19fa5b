package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PerpVault.
type Metrics struct {
	// --- Engine operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Ledger state ---
	OpenInterestUSD  *prometheus.GaugeVec
	PoolDeposits     prometheus.Gauge
	TraderCollateral prometheus.Gauge
	PoolShares       prometheus.Gauge

	// --- Risk events ---
	Liquidations           prometheus.Counter
	BorrowingFeesCollected prometheus.Counter

	// --- Record fan-out ---
	FeedDrops         prometheus.Counter
	FeedPublished     prometheus.Counter
	FeedPublishErrors prometheus.Counter

	// --- Persistence ---
	JournalWritten   prometheus.Counter
	JournalErrors    prometheus.Counter
	JournalBatchSize prometheus.Histogram
	JournalBatchDur  prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_applied_total",
			Help: "Operations applied by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_rejected_total",
			Help: "Operations rejected by the engine",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_op_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		OpenInterestUSD: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_open_interest_usd",
			Help: "Open notional per side (1e30 scale, approximate)",
		}, []string{"side"}),

		PoolDeposits: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_pool_deposits",
			Help: "Pooled deposits in collateral units (approximate)",
		}),

		TraderCollateral: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_trader_collateral",
			Help: "Aggregate trader collateral in collateral units (approximate)",
		}),

		PoolShares: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_pool_shares",
			Help: "Vault shares outstanding (approximate)",
		}),

		Liquidations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_liquidations_total",
			Help: "Positions liquidated",
		}),

		BorrowingFeesCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_borrowing_fees_collected",
			Help: "Borrowing fees settled into the pool, collateral units (approximate)",
		}),

		FeedDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_feed_drops_total",
			Help: "Records dropped due to full feed channel",
		}),

		FeedPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_feed_published_total",
			Help: "Records published to the event feed",
		}),

		FeedPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_feed_publish_errors_total",
			Help: "Event feed publish failures",
		}),

		JournalWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_journal_written_total",
			Help: "Records written to the operation journal",
		}),

		JournalErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_journal_errors_total",
			Help: "Operation journal write failures",
		}),

		JournalBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_journal_batch_size",
			Help:    "Records per journal batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		JournalBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_journal_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}
