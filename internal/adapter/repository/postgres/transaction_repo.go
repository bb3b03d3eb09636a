package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

const transactionColumns = `id, user_id, type, currency, amount, balance_before, balance_after, external_reference, description, metadata, created_at`

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var (
		t                     domain.Transaction
		typ                   string
		amount, before, after pgtype.Numeric
		metadata              []byte
		createdAt             pgtype.Timestamptz
	)
	if err := row.Scan(&t.ID, &t.UserID, &typ, &t.Currency, &amount, &before, &after, &t.ExternalReference, &t.Description, &metadata, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, translateError(err)
	}
	t.Type = domain.TransactionType(typ)
	t.Amount = numericToDecimal(amount)
	t.BalanceBefore = numericToDecimal(before)
	t.BalanceAfter = numericToDecimal(after)
	t.CreatedAt = createdAt.Time
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of transaction %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

// Create inserts an immutable transaction row.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	var metadata []byte
	if t.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(t.Metadata); err != nil {
			return err
		}
	}

	_, err := conn(r.db, tx).Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.UserID, string(t.Type), t.Currency,
		decimalToNumeric(t.Amount), decimalToNumeric(t.BalanceBefore), decimalToNumeric(t.BalanceAfter),
		t.ExternalReference, t.Description, metadata, timeToPgTimestamptz(t.CreatedAt),
	)
	return translateError(err)
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

// FindByExternalReference returns the oldest transaction of typ carrying ref.
func (r *TransactionRepository) FindByExternalReference(ctx context.Context, tx usecase.Transaction, typ domain.TransactionType, ref string) (*domain.Transaction, error) {
	return scanTransaction(conn(r.db, tx).QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE type = $1 AND external_reference = $2
		ORDER BY created_at, id
		LIMIT 1`, string(typ), ref))
}

// TotalsByType sums absolute amounts per currency and type in [from, to).
func (r *TransactionRepository) TotalsByType(ctx context.Context, tx usecase.Transaction, from, to time.Time) ([]domain.TypeTotal, error) {
	rows, err := conn(r.db, tx).Query(ctx, `
		SELECT currency, type, COALESCE(SUM(ABS(amount)), 0)
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY currency, type
		ORDER BY currency, type`,
		timeToPgTimestamptz(from), timeToPgTimestamptz(to))
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []domain.TypeTotal
	for rows.Next() {
		var (
			tt    domain.TypeTotal
			typ   string
			total pgtype.Numeric
		)
		if err := rows.Scan(&tt.Currency, &typ, &total); err != nil {
			return nil, translateError(err)
		}
		tt.Type = domain.TransactionType(typ)
		tt.Total = numericToDecimal(total)
		out = append(out, tt)
	}
	return out, translateError(rows.Err())
}

// TotalsByUser sums absolute amounts per user, currency and type before until.
func (r *TransactionRepository) TotalsByUser(ctx context.Context, tx usecase.Transaction, until time.Time) ([]domain.UserTypeTotals, error) {
	rows, err := conn(r.db, tx).Query(ctx, `
		SELECT user_id, currency, type, COALESCE(SUM(ABS(amount)), 0)
		FROM transactions
		WHERE created_at < $1
		GROUP BY user_id, currency, type
		ORDER BY user_id, currency`,
		timeToPgTimestamptz(until))
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []domain.UserTypeTotals
	index := make(map[string]int)
	for rows.Next() {
		var (
			userID, currency, typ string
			total                 pgtype.Numeric
		)
		if err := rows.Scan(&userID, &currency, &typ, &total); err != nil {
			return nil, translateError(err)
		}
		key := domain.AccountKey(userID, currency)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, domain.UserTypeTotals{
				UserID:   userID,
				Currency: currency,
				Totals:   make(map[domain.TransactionType]decimal.Decimal),
			})
		}
		out[i].Totals[domain.TransactionType(typ)] = numericToDecimal(total)
	}
	return out, translateError(rows.Err())
}

// Stats counts distinct users and transactions before until.
func (r *TransactionRepository) Stats(ctx context.Context, tx usecase.Transaction, until time.Time) (domain.LedgerStats, error) {
	var s domain.LedgerStats
	err := conn(r.db, tx).QueryRow(ctx, `
		SELECT COUNT(DISTINCT user_id), COUNT(*)
		FROM transactions
		WHERE created_at < $1`,
		timeToPgTimestamptz(until)).Scan(&s.TotalUsers, &s.TotalTransactions)
	return s, translateError(err)
}
