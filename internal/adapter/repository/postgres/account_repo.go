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

const accountColumns = `id, user_id, currency, available, locked, version, allow_negative, created_at, updated_at`

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*domain.Account, error) {
	var (
		a                 domain.Account
		available, locked pgtype.Numeric
		createdAt         pgtype.Timestamptz
		updatedAt         pgtype.Timestamptz
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Currency, &available, &locked, &a.Version, &a.AllowNegative, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, translateError(err)
	}
	a.Available = numericToDecimal(available)
	a.Locked = numericToDecimal(locked)
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return &a, nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByUserCurrency retrieves the account for (userID, currency).
func (r *AccountRepository) GetByUserCurrency(ctx context.Context, userID, currency string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND currency = $2`, userID, currency))
}

// GetOrCreateForUpdate inserts template unless (user_id, currency) exists, then locks the row.
func (r *AccountRepository) GetOrCreateForUpdate(ctx context.Context, tx usecase.Transaction, template *domain.Account) (*domain.Account, bool, error) {
	q := conn(r.db, tx)

	var id string
	err := q.QueryRow(ctx, `
		INSERT INTO accounts (id, user_id, currency, available, locked, version, allow_negative, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, 0, $4, $5, $5)
		ON CONFLICT (user_id, currency) DO NOTHING
		RETURNING id`,
		template.ID, template.UserID, template.Currency, template.AllowNegative, timeToPgTimestamptz(template.CreatedAt),
	).Scan(&id)
	created := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, translateError(err)
	}

	acc, err := r.GetForUpdate(ctx, tx, template.UserID, template.Currency)
	if err != nil {
		return nil, false, err
	}
	return acc, created, nil
}

// GetForUpdate locks the account for (userID, currency).
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, userID, currency string) (*domain.Account, error) {
	return scanAccount(conn(r.db, tx).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND currency = $2 FOR UPDATE`, userID, currency))
}

// AdjustBalance applies deltas and bumps the version. CHECK constraints reject overdrafts.
func (r *AccountRepository) AdjustBalance(ctx context.Context, tx usecase.Transaction, id string, availableDelta, lockedDelta decimal.Decimal, updatedAt time.Time) (*domain.Account, error) {
	return scanAccount(conn(r.db, tx).QueryRow(ctx, `
		UPDATE accounts
		SET available = available + $2, locked = locked + $3, version = version + 1, updated_at = $4
		WHERE id = $1
		RETURNING `+accountColumns,
		id, decimalToNumeric(availableDelta), decimalToNumeric(lockedDelta), timeToPgTimestamptz(updatedAt)))
}

// List returns accounts in creation order.
func (r *AccountRepository) List(ctx context.Context, tx usecase.Transaction, limit, offset int) ([]*domain.Account, error) {
	rows, err := conn(r.db, tx).Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0, limit)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, translateError(rows.Err())
}
