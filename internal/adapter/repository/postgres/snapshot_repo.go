package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

// SnapshotRepository implements usecase.SnapshotRepository.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// ReplaceForDate deletes the existing snapshots for date and inserts the new set.
func (r *SnapshotRepository) ReplaceForDate(ctx context.Context, tx usecase.Transaction, date string, snapshots []*domain.BalanceSnapshot) error {
	q := conn(r.db, tx)
	if _, err := q.Exec(ctx, `DELETE FROM balance_snapshots WHERE close_date = $1::date`, date); err != nil {
		return translateError(err)
	}
	for _, s := range snapshots {
		_, err := q.Exec(ctx, `
			INSERT INTO balance_snapshots (close_date, account_id, user_id, currency,
				deposits, withdrawals, bets, wins, bonuses, balance, created_at)
			VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			date, s.AccountID, s.UserID, s.Currency,
			decimalToNumeric(s.Deposits), decimalToNumeric(s.Withdrawals), decimalToNumeric(s.Bets),
			decimalToNumeric(s.Wins), decimalToNumeric(s.Bonuses), decimalToNumeric(s.Balance),
			timeToPgTimestamptz(s.CreatedAt),
		)
		if err != nil {
			return translateError(err)
		}
	}
	return nil
}

// ListByDate returns the snapshots for date ordered by user and currency.
func (r *SnapshotRepository) ListByDate(ctx context.Context, date string) ([]*domain.BalanceSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT close_date::text, account_id, user_id, currency,
			deposits, withdrawals, bets, wins, bonuses, balance, created_at
		FROM balance_snapshots
		WHERE close_date = $1::date
		ORDER BY user_id, currency`, date)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*domain.BalanceSnapshot
	for rows.Next() {
		var (
			s                                          domain.BalanceSnapshot
			deposits, withdrawals, bets, wins, bonuses pgtype.Numeric
			balance                                    pgtype.Numeric
			createdAt                                  pgtype.Timestamptz
		)
		if err := rows.Scan(&s.CloseDate, &s.AccountID, &s.UserID, &s.Currency,
			&deposits, &withdrawals, &bets, &wins, &bonuses, &balance, &createdAt); err != nil {
			return nil, translateError(err)
		}
		s.Deposits = numericToDecimal(deposits)
		s.Withdrawals = numericToDecimal(withdrawals)
		s.Bets = numericToDecimal(bets)
		s.Wins = numericToDecimal(wins)
		s.Bonuses = numericToDecimal(bonuses)
		s.Balance = numericToDecimal(balance)
		s.CreatedAt = createdAt.Time
		out = append(out, &s)
	}
	return out, translateError(rows.Err())
}
