package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

const dailyCloseColumns = `close_date::text, status, summary, balances, total_users, total_transactions,
	unreconciled_count, ledger_integrity, integrity, variance, export_path, error_details,
	forced, include_reconciliation, started_at, completed_at, updated_at`

// DailyCloseRepository implements usecase.DailyCloseRepository.
type DailyCloseRepository struct {
	db DBTX
}

// NewDailyCloseRepository creates a new DailyCloseRepository.
func NewDailyCloseRepository(db DBTX) *DailyCloseRepository {
	return &DailyCloseRepository{db: db}
}

func scanDailyClose(row scanner) (*domain.DailyClose, error) {
	var (
		c                                 domain.DailyClose
		status                            string
		summary, balances                 []byte
		integrity, variance, errorDetails []byte
		startedAt, completedAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&c.Date, &status, &summary, &balances, &c.TotalUsers, &c.TotalTransactions,
		&c.UnreconciledCount, &c.LedgerIntegrity, &integrity, &variance, &c.ExportPath, &errorDetails,
		&c.Forced, &c.IncludeReconciliation, &startedAt, &completedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDailyCloseNotFound
		}
		return nil, translateError(err)
	}
	c.Status = domain.DailyCloseStatus(status)
	c.StartedAt = startedAt.Time
	c.CompletedAt = optionalTime(completedAt)
	c.UpdatedAt = updatedAt.Time

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{summary, &c.Summary},
		{balances, &c.Balances},
		{integrity, &c.Integrity},
		{variance, &c.Variance},
		{errorDetails, &c.ErrorDetails},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode daily close %s: %w", c.Date, err)
		}
	}
	return &c, nil
}

func marshalNullable(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

// GetByDate retrieves the close for date.
func (r *DailyCloseRepository) GetByDate(ctx context.Context, date string) (*domain.DailyClose, error) {
	return scanDailyClose(r.db.QueryRow(ctx,
		`SELECT `+dailyCloseColumns+` FROM daily_closes WHERE close_date = $1::date`, date))
}

// GetByDateForUpdate locks the close row for date.
func (r *DailyCloseRepository) GetByDateForUpdate(ctx context.Context, tx usecase.Transaction, date string) (*domain.DailyClose, error) {
	return scanDailyClose(conn(r.db, tx).QueryRow(ctx,
		`SELECT `+dailyCloseColumns+` FROM daily_closes WHERE close_date = $1::date FOR UPDATE`, date))
}

// Upsert inserts or replaces the close for c.Date.
func (r *DailyCloseRepository) Upsert(ctx context.Context, tx usecase.Transaction, c *domain.DailyClose) error {
	summary, err := json.Marshal(nonNilSummary(c.Summary))
	if err != nil {
		return err
	}
	balances, err := json.Marshal(nonNilBalances(c.Balances))
	if err != nil {
		return err
	}
	integrity, err := marshalNullable(c.Integrity, c.Integrity == nil)
	if err != nil {
		return err
	}
	variance, err := marshalNullable(c.Variance, c.Variance == nil)
	if err != nil {
		return err
	}
	errorDetails, err := marshalNullable(c.ErrorDetails, c.ErrorDetails == nil)
	if err != nil {
		return err
	}

	_, err = conn(r.db, tx).Exec(ctx, `
		INSERT INTO daily_closes (close_date, status, summary, balances, total_users, total_transactions,
			unreconciled_count, ledger_integrity, integrity, variance, export_path, error_details,
			forced, include_reconciliation, started_at, completed_at, updated_at)
		VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (close_date) DO UPDATE SET
			status = EXCLUDED.status,
			summary = EXCLUDED.summary,
			balances = EXCLUDED.balances,
			total_users = EXCLUDED.total_users,
			total_transactions = EXCLUDED.total_transactions,
			unreconciled_count = EXCLUDED.unreconciled_count,
			ledger_integrity = EXCLUDED.ledger_integrity,
			integrity = EXCLUDED.integrity,
			variance = EXCLUDED.variance,
			export_path = EXCLUDED.export_path,
			error_details = EXCLUDED.error_details,
			forced = EXCLUDED.forced,
			include_reconciliation = EXCLUDED.include_reconciliation,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at`,
		c.Date, string(c.Status), summary, balances, c.TotalUsers, c.TotalTransactions,
		c.UnreconciledCount, c.LedgerIntegrity, integrity, variance, c.ExportPath, errorDetails,
		c.Forced, c.IncludeReconciliation, timeToPgTimestamptz(c.StartedAt), optionalTimestamptz(c.CompletedAt),
		timeToPgTimestamptz(c.UpdatedAt),
	)
	return translateError(err)
}

// List returns closes newest first. Empty bounds are open.
func (r *DailyCloseRepository) List(ctx context.Context, filter domain.DailyCloseFilter) ([]*domain.DailyClose, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+dailyCloseColumns+`
		FROM daily_closes
		WHERE close_date >= COALESCE(NULLIF($1, '')::date, '-infinity'::date)
		  AND close_date <= COALESCE(NULLIF($2, '')::date, 'infinity'::date)
		ORDER BY close_date DESC
		LIMIT $3`, filter.From, filter.To, filter.Limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*domain.DailyClose
	for rows.Next() {
		c, err := scanDailyClose(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, translateError(rows.Err())
}

func nonNilSummary(s []domain.CurrencySummary) []domain.CurrencySummary {
	if s == nil {
		return []domain.CurrencySummary{}
	}
	return s
}

func nonNilBalances(b []domain.CurrencyBalance) []domain.CurrencyBalance {
	if b == nil {
		return []domain.CurrencyBalance{}
	}
	return b
}
