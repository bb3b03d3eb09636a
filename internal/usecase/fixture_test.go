package usecase_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/gameledger/internal/adapter/repository/memory"
	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/infrastructure/metrics"
	"github.com/iho/gameledger/internal/usecase"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) Generate() string {
	return fmt.Sprintf("id-%06d", s.n.Add(1))
}

type fixture struct {
	store       *memory.Store
	txm         *memory.TxManager
	accounts    *memory.AccountRepository
	txs         *memory.TransactionRepository
	entries     *memory.EntryRepository
	ledgerRepo  *memory.LedgerRepository
	closes      *memory.DailyCloseRepository
	snapshots   *memory.SnapshotRepository
	recons      *memory.ReconciliationRepository
	payments    *memory.PaymentRepository
	outbox      *memory.OutboxRepository
	locker      *memory.Locker
	ids         *seqIDs
	metrics     *metrics.Metrics
	ledger      *usecase.LedgerUseCase
	integrity   *usecase.IntegrityUseCase
	reconciler  *usecase.ReconciliationUseCase
	clock       time.Time
	clockOffset atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	f := &fixture{
		store:      store,
		txm:        memory.NewTxManager(store),
		accounts:   memory.NewAccountRepository(store),
		txs:        memory.NewTransactionRepository(store),
		entries:    memory.NewEntryRepository(store),
		ledgerRepo: memory.NewLedgerRepository(store),
		closes:     memory.NewDailyCloseRepository(store),
		snapshots:  memory.NewSnapshotRepository(store),
		recons:     memory.NewReconciliationRepository(store),
		payments:   memory.NewPaymentRepository(store),
		outbox:     memory.NewOutboxRepository(store),
		locker:     memory.NewLocker(),
		ids:        &seqIDs{},
		metrics:    metrics.New(prometheus.NewRegistry()),
		clock:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	f.ledger = usecase.NewLedgerUseCase(usecase.LedgerDeps{
		TxManager:    f.txm,
		Accounts:     f.accounts,
		Transactions: f.txs,
		Entries:      f.entries,
		Outbox:       f.outbox,
		IDGen:        f.ids,
		Currencies:   domain.NewCurrencies([]string{"USD", "EUR"}),
		Logger:       zerolog.Nop(),
		Metrics:      f.metrics,
		Now:          f.now,
	})
	f.integrity = usecase.NewIntegrityUseCase(f.txm, f.accounts, f.entries, f.ledgerRepo, zerolog.Nop(), f.metrics)
	f.reconciler = usecase.NewReconciliationUseCase(usecase.ReconciliationDeps{
		TxManager:       f.txm,
		Payments:        f.payments,
		Transactions:    f.txs,
		Reconciliations: f.recons,
		Outbox:          f.outbox,
		IDGen:           f.ids,
		Locker:          f.locker,
		Logger:          zerolog.Nop(),
		Metrics:         f.metrics,
		Now:             f.now,
	})
	return f
}

// now advances one millisecond per call so created_at values stay ordered.
func (f *fixture) now() time.Time {
	return f.clock.Add(time.Duration(f.clockOffset.Add(1)) * time.Millisecond)
}

// setDay moves the clock to noon UTC on date.
func (f *fixture) setDay(t *testing.T, date string) {
	t.Helper()
	d, err := domain.ParseDate(date)
	require.NoError(t, err)
	f.clock = d.Add(12 * time.Hour)
	f.clockOffset.Store(0)
}

func (f *fixture) exec(t *testing.T, userID string, typ domain.TransactionType, amount string, ref ...string) *usecase.ExecuteTransactionResult {
	t.Helper()
	in := usecase.ExecuteTransactionInput{
		UserID:   userID,
		Type:     typ,
		Currency: "USD",
		Amount:   decimal.RequireFromString(amount),
	}
	if len(ref) > 0 {
		in.ExternalReference = &ref[0]
	}
	res, err := f.ledger.ExecuteTransaction(context.Background(), in)
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T, userID string) *domain.Account {
	t.Helper()
	acc, err := f.ledger.GetBalance(context.Background(), userID, "USD")
	require.NoError(t, err)
	return acc
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
