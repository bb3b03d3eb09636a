package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

const reconciliationColumns = `id, entry_type, reference_id, expected_amount, actual_amount, variance,
	currency, status, notes, resolved_by, resolved_at, created_at, updated_at`

// ReconciliationRepository implements usecase.ReconciliationRepository.
type ReconciliationRepository struct {
	db DBTX
}

// NewReconciliationRepository creates a new ReconciliationRepository.
func NewReconciliationRepository(db DBTX) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

func scanReconciliationEntry(row scanner) (*domain.ReconciliationEntry, error) {
	var (
		e                          domain.ReconciliationEntry
		entryType, status          string
		expected, actual, variance pgtype.Numeric
		resolvedAt                 pgtype.Timestamptz
		createdAt, updatedAt       pgtype.Timestamptz
	)
	err := row.Scan(&e.ID, &entryType, &e.ReferenceID, &expected, &actual, &variance,
		&e.Currency, &status, &e.Notes, &e.ResolvedBy, &resolvedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReconciliationEntryNotFound
		}
		return nil, translateError(err)
	}
	e.EntryType = domain.ReconciliationEntryType(entryType)
	e.Status = domain.ReconciliationStatus(status)
	e.ExpectedAmount = numericToDecimal(expected)
	e.ActualAmount = numericToDecimal(actual)
	e.Variance = numericToDecimal(variance)
	e.ResolvedAt = optionalTime(resolvedAt)
	e.CreatedAt = createdAt.Time
	e.UpdatedAt = updatedAt.Time
	return &e, nil
}

// Create inserts a new discrepancy. A concurrent insert for the same reference
// surfaces as a serialization conflict so the caller can retry and find it.
func (r *ReconciliationRepository) Create(ctx context.Context, tx usecase.Transaction, e *domain.ReconciliationEntry) error {
	_, err := conn(r.db, tx).Exec(ctx, `
		INSERT INTO reconciliation_entries (id, entry_type, reference_id, expected_amount, actual_amount,
			variance, currency, status, notes, resolved_by, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, string(e.EntryType), e.ReferenceID, decimalToNumeric(e.ExpectedAmount),
		decimalToNumeric(e.ActualAmount), decimalToNumeric(e.Variance), e.Currency, string(e.Status),
		e.Notes, e.ResolvedBy, optionalTimestamptz(e.ResolvedAt),
		timeToPgTimestamptz(e.CreatedAt), timeToPgTimestamptz(e.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: reconciliation entry %s/%s exists", domain.ErrSerializationConflict, e.EntryType, e.ReferenceID)
	}
	return translateError(err)
}

// GetByID retrieves an entry by ID.
func (r *ReconciliationRepository) GetByID(ctx context.Context, id string) (*domain.ReconciliationEntry, error) {
	return scanReconciliationEntry(r.db.QueryRow(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliation_entries WHERE id = $1`, id))
}

// GetByIDForUpdate retrieves and locks an entry.
func (r *ReconciliationRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.ReconciliationEntry, error) {
	return scanReconciliationEntry(conn(r.db, tx).QueryRow(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliation_entries WHERE id = $1 FOR UPDATE`, id))
}

// FindByReference returns the entry raised for a payment reference, whatever its status.
func (r *ReconciliationRepository) FindByReference(ctx context.Context, tx usecase.Transaction, entryType domain.ReconciliationEntryType, ref string) (*domain.ReconciliationEntry, error) {
	return scanReconciliationEntry(conn(r.db, tx).QueryRow(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliation_entries WHERE entry_type = $1 AND reference_id = $2 FOR UPDATE`,
		string(entryType), ref))
}

// Update persists the mutable fields of an entry.
func (r *ReconciliationRepository) Update(ctx context.Context, tx usecase.Transaction, e *domain.ReconciliationEntry) error {
	tag, err := conn(r.db, tx).Exec(ctx, `
		UPDATE reconciliation_entries
		SET expected_amount = $2, actual_amount = $3, variance = $4, status = $5, notes = $6,
			resolved_by = $7, resolved_at = $8, updated_at = $9
		WHERE id = $1`,
		e.ID, decimalToNumeric(e.ExpectedAmount), decimalToNumeric(e.ActualAmount), decimalToNumeric(e.Variance),
		string(e.Status), e.Notes, e.ResolvedBy, optionalTimestamptz(e.ResolvedAt), timeToPgTimestamptz(e.UpdatedAt),
	)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReconciliationEntryNotFound
	}
	return nil
}

// ListOpen returns unresolved entries, oldest first.
func (r *ReconciliationRepository) ListOpen(ctx context.Context, limit int) ([]*domain.ReconciliationEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reconciliationColumns+`
		FROM reconciliation_entries
		WHERE status <> $1
		ORDER BY created_at, id
		LIMIT $2`, string(domain.ReconciliationStatusResolved), limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*domain.ReconciliationEntry
	for rows.Next() {
		e, err := scanReconciliationEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, translateError(rows.Err())
}

// CountByStatus counts entries in status.
func (r *ReconciliationRepository) CountByStatus(ctx context.Context, status domain.ReconciliationStatus) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reconciliation_entries WHERE status = $1`, string(status)).Scan(&n)
	return n, translateError(err)
}
