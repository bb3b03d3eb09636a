package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	db DBTX
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(db DBTX) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create inserts a ledger entry.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	_, err := conn(r.db, tx).Exec(ctx, `
		INSERT INTO ledger_entries (id, transaction_id, debit_account_id, credit_account_id, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.TransactionID, entry.DebitAccountID, entry.CreditAccountID,
		decimalToNumeric(entry.Amount), entry.Currency, timeToPgTimestamptz(entry.CreatedAt),
	)
	return translateError(err)
}

// GetByTransaction retrieves the entry written for a transaction.
func (r *EntryRepository) GetByTransaction(ctx context.Context, transactionID string) (*domain.LedgerEntry, error) {
	var (
		e         domain.LedgerEntry
		amount    pgtype.Numeric
		createdAt pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, transaction_id, debit_account_id, credit_account_id, amount, currency, created_at
		FROM ledger_entries
		WHERE transaction_id = $1`, transactionID,
	).Scan(&e.ID, &e.TransactionID, &e.DebitAccountID, &e.CreditAccountID, &amount, &e.Currency, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, translateError(err)
	}
	e.Amount = numericToDecimal(amount)
	e.CreatedAt = createdAt.Time
	return &e, nil
}

// SumByAccount totals the credits and debits touching one account.
func (r *EntryRepository) SumByAccount(ctx context.Context, tx usecase.Transaction, accountID string) (domain.EntrySums, error) {
	var credits, debits pgtype.Numeric
	err := conn(r.db, tx).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE credit_account_id = $1), 0),
			COALESCE(SUM(amount) FILTER (WHERE debit_account_id = $1), 0)
		FROM ledger_entries
		WHERE credit_account_id = $1 OR debit_account_id = $1`, accountID,
	).Scan(&credits, &debits)
	if err != nil {
		return domain.EntrySums{}, translateError(err)
	}
	return domain.EntrySums{Credits: numericToDecimal(credits), Debits: numericToDecimal(debits)}, nil
}

// SumsByAccount aggregates every account's entries, optionally only those created before until.
func (r *EntryRepository) SumsByAccount(ctx context.Context, tx usecase.Transaction, until *time.Time) (map[string]domain.EntrySums, error) {
	rows, err := conn(r.db, tx).Query(ctx, `
		SELECT account_id, SUM(credit), SUM(debit)
		FROM (
			SELECT credit_account_id AS account_id, amount AS credit, 0 AS debit, created_at FROM ledger_entries
			UNION ALL
			SELECT debit_account_id, 0, amount, created_at FROM ledger_entries
		) e
		WHERE $1::timestamptz IS NULL OR e.created_at < $1
		GROUP BY account_id`, optionalTimestamptz(until))
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	out := make(map[string]domain.EntrySums)
	for rows.Next() {
		var (
			id            string
			credit, debit pgtype.Numeric
		)
		if err := rows.Scan(&id, &credit, &debit); err != nil {
			return nil, translateError(err)
		}
		out[id] = domain.EntrySums{Credits: numericToDecimal(credit), Debits: numericToDecimal(debit)}
	}
	return out, translateError(rows.Err())
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	db DBTX
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Totals sums entry amounts on the credit and debit sides.
// Every entry has both sides, so the totals differ only if a row is malformed.
func (r *LedgerRepository) Totals(ctx context.Context, tx usecase.Transaction) (decimal.Decimal, decimal.Decimal, error) {
	var credits, debits pgtype.Numeric
	err := conn(r.db, tx).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE credit_account_id IS NOT NULL), 0),
			COALESCE(SUM(amount) FILTER (WHERE debit_account_id IS NOT NULL), 0)
		FROM ledger_entries`,
	).Scan(&credits, &debits)
	if err != nil {
		return decimal.Zero, decimal.Zero, translateError(err)
	}
	return numericToDecimal(credits), numericToDecimal(debits), nil
}
