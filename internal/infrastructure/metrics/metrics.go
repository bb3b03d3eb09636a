package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger writer metrics
	TransactionsExecuted  *prometheus.CounterVec
	TransactionDuration   prometheus.Histogram
	TransactionAmount     *prometheus.HistogramVec
	TransactionErrors     *prometheus.CounterVec
	LedgerInconsistencies prometheus.Counter
	BalanceOperations     *prometheus.CounterVec

	// Account metrics
	AccountsCreated prometheus.Counter

	// Integrity metrics
	IntegrityChecks   *prometheus.CounterVec
	AccountImbalances prometheus.Gauge
	IntegrityDuration prometheus.Histogram

	// Daily close metrics
	DailyCloseRuns         *prometheus.CounterVec
	DailyCloseDuration     prometheus.Histogram
	DailyCloseStepDuration *prometheus.HistogramVec
	UnreconciledItems      prometheus.Gauge

	// Reconciliation metrics
	ReconciliationItems         *prometheus.CounterVec
	ReconciliationDiscrepancies *prometheus.CounterVec

	// Job metrics
	JobsProcessed *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	JobsEnqueued  *prometheus.CounterVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter

	// Ops API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec
}

// New creates all metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Ledger writer metrics
		TransactionsExecuted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_transactions_executed_total",
				Help: "Total number of ledger transactions executed by type",
			},
			[]string{"type"},
		),
		TransactionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gameledger_transaction_duration_seconds",
			Help:    "Duration of execute transaction operations",
			Buckets: prometheus.DefBuckets,
		}),
		TransactionAmount: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gameledger_transaction_amount",
				Help:    "Transaction amounts",
				Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
			},
			[]string{"currency"},
		),
		TransactionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_transaction_errors_total",
				Help: "Total number of ledger transaction errors by type",
			},
			[]string{"error_type"},
		),
		LedgerInconsistencies: f.NewCounter(prometheus.CounterOpts{
			Name: "gameledger_ledger_inconsistencies_total",
			Help: "Transactions aborted because balances disagreed with the entry log",
		}),
		BalanceOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_balance_operations_total",
				Help: "Total lock and unlock operations",
			},
			[]string{"operation"},
		),

		// Account metrics
		AccountsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "gameledger_accounts_created_total",
			Help: "Total number of accounts created",
		}),

		// Integrity metrics
		IntegrityChecks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_integrity_checks_total",
				Help: "Total ledger integrity checks by result",
			},
			[]string{"result"},
		),
		AccountImbalances: f.NewGauge(prometheus.GaugeOpts{
			Name: "gameledger_account_imbalances",
			Help: "Accounts out of balance at the last integrity check",
		}),
		IntegrityDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gameledger_integrity_duration_seconds",
			Help:    "Duration of ledger integrity checks",
			Buckets: prometheus.DefBuckets,
		}),

		// Daily close metrics
		DailyCloseRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_daily_close_runs_total",
				Help: "Total daily close runs by final status",
			},
			[]string{"status"},
		),
		DailyCloseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gameledger_daily_close_duration_seconds",
			Help:    "Duration of daily close runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		DailyCloseStepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gameledger_daily_close_step_duration_seconds",
				Help:    "Duration of individual daily close steps",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		UnreconciledItems: f.NewGauge(prometheus.GaugeOpts{
			Name: "gameledger_unreconciled_items",
			Help: "Pending confirmations plus unreconciled entries at the last close",
		}),

		// Reconciliation metrics
		ReconciliationItems: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_reconciliation_items_total",
				Help: "Payment items processed by reconciliation",
			},
			[]string{"entry_type", "outcome"},
		),
		ReconciliationDiscrepancies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_reconciliation_discrepancies_total",
				Help: "Reconciliation entries created",
			},
			[]string{"entry_type", "status"},
		),

		// Job metrics
		JobsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_jobs_processed_total",
				Help: "Jobs processed by type and result",
			},
			[]string{"type", "result"},
		),
		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gameledger_job_duration_seconds",
				Help:    "Job handler duration",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"type"},
		),
		JobsEnqueued: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_jobs_enqueued_total",
				Help: "Jobs enqueued by type",
			},
			[]string{"type"},
		),

		// Outbox metrics
		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_events_published_total",
				Help: "Outbox events published by type",
			},
			[]string{"event_type"},
		),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "gameledger_event_publish_errors_total",
			Help: "Outbox events that failed to publish",
		}),

		// Ops API metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gameledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Redis metrics
		RedisOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),
		RedisErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameledger_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),
	}
}
