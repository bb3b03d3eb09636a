package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

// PaymentRepository implements usecase.PaymentRepository over the payment read models.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// paymentRow is the column set shared by deposit_intents and withdrawal_requests.
type paymentRow struct {
	id, userID, currency, status string
	amount                       pgtype.Numeric
	createdAt, updatedAt         pgtype.Timestamptz
}

func (r *PaymentRepository) listPayments(ctx context.Context, table string, from, to time.Time, fn func(paymentRow)) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, currency, status, created_at, updated_at
		FROM `+table+`
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id`, from, to)
	if err != nil {
		return translateError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var p paymentRow
		if err := rows.Scan(&p.id, &p.userID, &p.amount, &p.currency, &p.status, &p.createdAt, &p.updatedAt); err != nil {
			return translateError(err)
		}
		fn(p)
	}
	return translateError(rows.Err())
}

// ListDepositIntents returns intents created in [from, to).
func (r *PaymentRepository) ListDepositIntents(ctx context.Context, from, to time.Time) ([]*domain.DepositIntent, error) {
	var out []*domain.DepositIntent
	err := r.listPayments(ctx, "deposit_intents", from, to, func(p paymentRow) {
		out = append(out, &domain.DepositIntent{
			ID:        p.id,
			UserID:    p.userID,
			Amount:    numericToDecimal(p.amount),
			Currency:  p.currency,
			Status:    domain.DepositIntentStatus(p.status),
			CreatedAt: p.createdAt.Time,
			UpdatedAt: p.updatedAt.Time,
		})
	})
	return out, err
}

// ListWithdrawalRequests returns requests created in [from, to).
func (r *PaymentRepository) ListWithdrawalRequests(ctx context.Context, from, to time.Time) ([]*domain.WithdrawalRequest, error) {
	var out []*domain.WithdrawalRequest
	err := r.listPayments(ctx, "withdrawal_requests", from, to, func(p paymentRow) {
		out = append(out, &domain.WithdrawalRequest{
			ID:        p.id,
			UserID:    p.userID,
			Amount:    numericToDecimal(p.amount),
			Currency:  p.currency,
			Status:    domain.WithdrawalStatus(p.status),
			CreatedAt: p.createdAt.Time,
			UpdatedAt: p.updatedAt.Time,
		})
	})
	return out, err
}

// GetConfirmation locks the provider confirmation for a reference.
func (r *PaymentRepository) GetConfirmation(ctx context.Context, tx usecase.Transaction, kind domain.ReconciliationEntryType, ref string) (*domain.PaymentConfirmation, error) {
	var (
		c                    domain.PaymentConfirmation
		k, status            string
		amount               pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := conn(r.db, tx).QueryRow(ctx, `
		SELECT id, kind, reference_id, amount, currency, status, transaction_id, created_at, updated_at
		FROM payment_confirmations
		WHERE kind = $1 AND reference_id = $2
		FOR UPDATE`, string(kind), ref,
	).Scan(&c.ID, &k, &c.ReferenceID, &amount, &c.Currency, &status, &c.TransactionID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConfirmationNotFound
		}
		return nil, translateError(err)
	}
	c.Kind = domain.ReconciliationEntryType(k)
	c.Status = domain.ConfirmationStatus(status)
	c.Amount = numericToDecimal(amount)
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}

// UpdateConfirmation persists status and matched transaction of a confirmation.
func (r *PaymentRepository) UpdateConfirmation(ctx context.Context, tx usecase.Transaction, c *domain.PaymentConfirmation) error {
	tag, err := conn(r.db, tx).Exec(ctx, `
		UPDATE payment_confirmations
		SET status = $3, transaction_id = $4, updated_at = $5
		WHERE kind = $1 AND reference_id = $2`,
		string(c.Kind), c.ReferenceID, string(c.Status), c.TransactionID, timeToPgTimestamptz(c.UpdatedAt),
	)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConfirmationNotFound
	}
	return nil
}

// CountConfirmationsByStatus counts confirmations in status.
func (r *PaymentRepository) CountConfirmationsByStatus(ctx context.Context, status domain.ConfirmationStatus) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payment_confirmations WHERE status = $1`, string(status)).Scan(&n)
	return n, translateError(err)
}
