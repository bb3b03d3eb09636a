package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gameledger/internal/domain"
)

// Repository methods that take a Transaction run inside it; a nil Transaction
// runs the statement on its own.

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByUserCurrency(ctx context.Context, userID, currency string) (*domain.Account, error)
	// GetOrCreateForUpdate locks the account for (template.UserID, template.Currency),
	// inserting template first when it does not exist.
	GetOrCreateForUpdate(ctx context.Context, tx Transaction, template *domain.Account) (*domain.Account, bool, error)
	GetForUpdate(ctx context.Context, tx Transaction, userID, currency string) (*domain.Account, error)
	// AdjustBalance adds the deltas to available and locked and returns the updated row.
	AdjustBalance(ctx context.Context, tx Transaction, id string, availableDelta, lockedDelta decimal.Decimal, updatedAt time.Time) (*domain.Account, error)
	List(ctx context.Context, tx Transaction, limit, offset int) ([]*domain.Account, error)
}

// TransactionRepository defines data access for ledger transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx Transaction, t *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindByExternalReference(ctx context.Context, tx Transaction, typ domain.TransactionType, ref string) (*domain.Transaction, error)
	// TotalsByType sums absolute amounts per currency and type for createdAt in [from, to).
	TotalsByType(ctx context.Context, tx Transaction, from, to time.Time) ([]domain.TypeTotal, error)
	// TotalsByUser sums absolute amounts per user, currency and type for createdAt before until.
	TotalsByUser(ctx context.Context, tx Transaction, until time.Time) ([]domain.UserTypeTotals, error)
	Stats(ctx context.Context, tx Transaction, until time.Time) (domain.LedgerStats, error)
}

// EntryRepository defines data access for ledger entries.
type EntryRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) error
	GetByTransaction(ctx context.Context, transactionID string) (*domain.LedgerEntry, error)
	SumByAccount(ctx context.Context, tx Transaction, accountID string) (domain.EntrySums, error)
	// SumsByAccount aggregates every account's entries, optionally only those created before until.
	SumsByAccount(ctx context.Context, tx Transaction, until *time.Time) (map[string]domain.EntrySums, error)
}

// LedgerRepository defines data access for ledger-wide operations.
type LedgerRepository interface {
	Totals(ctx context.Context, tx Transaction) (totalCredits, totalDebits decimal.Decimal, err error)
}

// DailyCloseRepository defines data access for daily closes.
type DailyCloseRepository interface {
	GetByDate(ctx context.Context, date string) (*domain.DailyClose, error)
	GetByDateForUpdate(ctx context.Context, tx Transaction, date string) (*domain.DailyClose, error)
	Upsert(ctx context.Context, tx Transaction, c *domain.DailyClose) error
	List(ctx context.Context, filter domain.DailyCloseFilter) ([]*domain.DailyClose, error)
}

// SnapshotRepository defines data access for end-of-day balance snapshots.
type SnapshotRepository interface {
	// ReplaceForDate swaps the snapshot set for date with snapshots.
	ReplaceForDate(ctx context.Context, tx Transaction, date string, snapshots []*domain.BalanceSnapshot) error
	ListByDate(ctx context.Context, date string) ([]*domain.BalanceSnapshot, error)
}

// ReconciliationRepository defines data access for reconciliation entries.
type ReconciliationRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.ReconciliationEntry) error
	GetByID(ctx context.Context, id string) (*domain.ReconciliationEntry, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.ReconciliationEntry, error)
	FindByReference(ctx context.Context, tx Transaction, entryType domain.ReconciliationEntryType, ref string) (*domain.ReconciliationEntry, error)
	Update(ctx context.Context, tx Transaction, entry *domain.ReconciliationEntry) error
	ListOpen(ctx context.Context, limit int) ([]*domain.ReconciliationEntry, error)
	CountByStatus(ctx context.Context, status domain.ReconciliationStatus) (int64, error)
}

// PaymentRepository reads payment records owned by the payment subsystems.
type PaymentRepository interface {
	ListDepositIntents(ctx context.Context, from, to time.Time) ([]*domain.DepositIntent, error)
	ListWithdrawalRequests(ctx context.Context, from, to time.Time) ([]*domain.WithdrawalRequest, error)
	GetConfirmation(ctx context.Context, tx Transaction, kind domain.ReconciliationEntryType, ref string) (*domain.PaymentConfirmation, error)
	UpdateConfirmation(ctx context.Context, tx Transaction, c *domain.PaymentConfirmation) error
	CountConfirmationsByStatus(ctx context.Context, status domain.ConfirmationStatus) (int64, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	// Begin starts a serializable read-write transaction.
	Begin(ctx context.Context) (Transaction, error)
	// BeginLocking starts a read-committed read-write transaction for writers
	// that take FOR UPDATE locks on every row they change.
	BeginLocking(ctx context.Context) (Transaction, error)
	// BeginSnapshot starts a read-only transaction over one consistent snapshot.
	BeginSnapshot(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier re-runs an operation on transient conflicts.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Locker is a distributed mutual-exclusion lock keyed by name.
type Locker interface {
	// TryLock acquires key for ttl. ok is false when another holder owns it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Unlock releases key only if it is still held with token.
	Unlock(ctx context.Context, key, token string) error
}

// Exporter writes a daily close report and returns where it was written.
type Exporter interface {
	Export(ctx context.Context, report *domain.DailyCloseReport) (string, error)
}

// DayReconciler reconciles one day's payments without taking the per-date lock.
type DayReconciler interface {
	ReconcileDay(ctx context.Context, date string) (*domain.ReconciliationResult, error)
}

// IntegrityVerifier audits the whole ledger.
type IntegrityVerifier interface {
	VerifyLedgerIntegrity(ctx context.Context) (*domain.IntegrityResult, error)
}

// ProgressFunc receives a completion percentage between 0 and 100.
type ProgressFunc func(ctx context.Context, percent int)
