// Package app wires repositories, use cases and background components together.
package app

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iho/gameledger/internal/adapter/export"
	"github.com/iho/gameledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/gameledger/internal/adapter/repository/postgres"
	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/infrastructure/config"
	"github.com/iho/gameledger/internal/infrastructure/eventpublisher"
	"github.com/iho/gameledger/internal/infrastructure/metrics"
	"github.com/iho/gameledger/internal/usecase"
	"github.com/iho/gameledger/internal/worker"
)

// Repositories is the storage layer the use cases run on.
type Repositories struct {
	TxManager       usecase.TransactionManager
	Accounts        usecase.AccountRepository
	Transactions    usecase.TransactionRepository
	Entries         usecase.EntryRepository
	Ledger          usecase.LedgerRepository
	Closes          usecase.DailyCloseRepository
	Snapshots       usecase.SnapshotRepository
	Reconciliations usecase.ReconciliationRepository
	Payments        usecase.PaymentRepository
	Outbox          usecase.OutboxRepository
}

// PostgresRepositories builds Repositories on pool.
func PostgresRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		TxManager:       postgresRepo.NewTxManager(pool),
		Accounts:        postgresRepo.NewAccountRepository(pool),
		Transactions:    postgresRepo.NewTransactionRepository(pool),
		Entries:         postgresRepo.NewEntryRepository(pool),
		Ledger:          postgresRepo.NewLedgerRepository(pool),
		Closes:          postgresRepo.NewDailyCloseRepository(pool),
		Snapshots:       postgresRepo.NewSnapshotRepository(pool),
		Reconciliations: postgresRepo.NewReconciliationRepository(pool),
		Payments:        postgresRepo.NewPaymentRepository(pool),
		Outbox:          postgresRepo.NewOutboxRepository(pool),
	}
}

// MemoryRepositories builds Repositories on an in-process store.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		TxManager:       memory.NewTxManager(store),
		Accounts:        memory.NewAccountRepository(store),
		Transactions:    memory.NewTransactionRepository(store),
		Entries:         memory.NewEntryRepository(store),
		Ledger:          memory.NewLedgerRepository(store),
		Closes:          memory.NewDailyCloseRepository(store),
		Snapshots:       memory.NewSnapshotRepository(store),
		Reconciliations: memory.NewReconciliationRepository(store),
		Payments:        memory.NewPaymentRepository(store),
		Outbox:          memory.NewOutboxRepository(store),
	}
}

// Options configures Build.
type Options struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Registry  prometheus.Registerer // Used when Metrics is nil
	Metrics   *metrics.Metrics
	Repos     Repositories
	Locker    usecase.Locker
	Queue     worker.Queue
	Publisher eventpublisher.Publisher
	Now       func() time.Time
}

// Container holds the wired use cases.
type Container struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Repos     Repositories
	Queue     worker.Queue
	Publisher eventpublisher.Publisher

	Ledger         *usecase.LedgerUseCase
	Integrity      *usecase.IntegrityUseCase
	Reconciliation *usecase.ReconciliationUseCase
	DailyClose     *usecase.DailyCloseUseCase
}

// Build wires the use cases on opts.
func Build(opts Options) *Container {
	cfg := opts.Config
	log := opts.Logger
	m := opts.Metrics
	if m == nil {
		m = metrics.New(opts.Registry)
	}
	idGen := postgresRepo.NewULIDGenerator()
	repos := opts.Repos

	ledger := usecase.NewLedgerUseCase(usecase.LedgerDeps{
		TxManager:    repos.TxManager,
		Accounts:     repos.Accounts,
		Transactions: repos.Transactions,
		Entries:      repos.Entries,
		Outbox:       repos.Outbox,
		IDGen:        idGen,
		Retrier:      postgresRepo.NewRetrier(log),
		Currencies:   domain.NewCurrencies(cfg.SupportedCurrencies),
		HouseUserID:  cfg.HouseUserID,
		TxTimeout:    cfg.LedgerTxTimeout,
		Logger:       log,
		Metrics:      m,
		Now:          opts.Now,
	})

	integrity := usecase.NewIntegrityUseCase(repos.TxManager, repos.Accounts, repos.Entries, repos.Ledger, log, m)

	reconciliation := usecase.NewReconciliationUseCase(usecase.ReconciliationDeps{
		TxManager:       repos.TxManager,
		Payments:        repos.Payments,
		Transactions:    repos.Transactions,
		Reconciliations: repos.Reconciliations,
		Outbox:          repos.Outbox,
		IDGen:           idGen,
		Locker:          opts.Locker,
		Location:        cfg.Location(),
		LockTTL:         cfg.CloseLockTTL,
		TxTimeout:       cfg.LedgerTxTimeout,
		Logger:          log,
		Metrics:         m,
		Now:             opts.Now,
	})

	dailyClose := usecase.NewDailyCloseUseCase(usecase.DailyCloseDeps{
		TxManager:       repos.TxManager,
		Accounts:        repos.Accounts,
		Transactions:    repos.Transactions,
		Entries:         repos.Entries,
		Closes:          repos.Closes,
		Snapshots:       repos.Snapshots,
		Reconciliations: repos.Reconciliations,
		Payments:        repos.Payments,
		Outbox:          repos.Outbox,
		IDGen:           idGen,
		Integrity:       integrity,
		Reconciler:      reconciliation,
		Exporter:        export.NewCSVExporter(cfg.CloseExportDir),
		Locker:          opts.Locker,
		Logger:          log,
		Metrics:         m,
		Now:             opts.Now,
	}, usecase.DailyCloseConfig{
		Currencies:  cfg.SupportedCurrencies,
		HouseUserID: cfg.HouseUserID,
		Location:    cfg.Location(),
		StaleAfter:  cfg.CloseStaleAfter,
		LockTTL:     cfg.CloseLockTTL,
		TxTimeout:   cfg.LedgerTxTimeout,
	})

	return &Container{
		Config:         cfg,
		Logger:         log,
		Metrics:        m,
		Repos:          repos,
		Queue:          opts.Queue,
		Publisher:      opts.Publisher,
		Ledger:         ledger,
		Integrity:      integrity,
		Reconciliation: reconciliation,
		DailyClose:     dailyClose,
	}
}

// Worker returns a job worker handling daily_close and reconciliation jobs.
func (c *Container) Worker() *worker.Worker {
	w := worker.New(worker.Config{
		Queue:             c.Queue,
		Logger:            c.Logger,
		Metrics:           c.Metrics,
		PollInterval:      c.Config.JobPollInterval,
		JobTimeout:        c.Config.JobTimeout,
		HeartbeatInterval: c.Config.JobLease / 3,
		Concurrency:       c.Config.JobConcurrency,
	})
	w.Handle(domain.JobTypeDailyClose, worker.DailyCloseHandler(c.DailyClose))
	w.Handle(domain.JobTypeReconciliation, worker.ReconciliationHandler(c.Reconciliation))
	return w
}

// Scheduler returns the daily close scheduler.
func (c *Container) Scheduler() (*worker.Scheduler, error) {
	hour, minute, err := c.Config.ScheduleAt()
	if err != nil {
		return nil, err
	}
	return worker.NewScheduler(worker.SchedulerConfig{
		Queue:                 c.Queue,
		Logger:                c.Logger,
		Metrics:               c.Metrics,
		Location:              c.Config.Location(),
		Hour:                  hour,
		Minute:                minute,
		IncludeReconciliation: c.Config.CloseIncludeReconciliation,
	}), nil
}

// EventPublisher returns the outbox relay.
func (c *Container) EventPublisher() *eventpublisher.EventPublisher {
	return eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: c.Repos.Outbox,
		Publisher:  c.Publisher,
		Logger:     c.Logger,
		Metrics:    c.Metrics,
		BatchSize:  c.Config.OutboxBatchSize,
		Interval:   c.Config.OutboxInterval,
		Retention:  c.Config.OutboxRetention,
	})
}

// JobOptions returns queue options carrying the configured job defaults.
func (c *Container) JobOptions() domain.JobOptions {
	return domain.JobOptions{
		Attempts:  c.Config.JobAttempts,
		Backoff:   c.Config.JobBackoff,
		Retention: c.Config.JobRetention,
	}
}
