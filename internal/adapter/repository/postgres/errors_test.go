package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/iho/gameledger/internal/domain"
)

func TestTranslateError(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"non pg error", other, other},
		{"serialization failure", &pgconn.PgError{Code: pgErrSerializationFailure}, domain.ErrSerializationConflict},
		{"deadlock", &pgconn.PgError{Code: pgErrDeadlock}, domain.ErrSerializationConflict},
		{"available check", &pgconn.PgError{Code: pgErrCheckViolation, ConstraintName: "accounts_available_check"}, domain.ErrInsufficientBalance},
		{"locked check", &pgconn.PgError{Code: pgErrCheckViolation, ConstraintName: "accounts_locked_check"}, domain.ErrInsufficientLockedBalance},
		{"statement timeout", &pgconn.PgError{Code: pgErrQueryCanceled}, domain.ErrTransactionTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestTranslateErrorKeepsUnknownConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgErrCheckViolation, ConstraintName: "something_else"}
	got := translateError(pgErr)

	assert.Same(t, error(pgErr), got)
	assert.False(t, errors.Is(got, domain.ErrInsufficientBalance))
}

func TestNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "100.5", "-1680", "0.00000001", "123456789.12345678"} {
		d := decimal.RequireFromString(s)
		got := numericToDecimal(decimalToNumeric(d))
		assert.True(t, d.Equal(got), "%s became %s", s, got)
	}
	assert.True(t, numericToDecimal(pgtype.Numeric{}).IsZero())
}

func TestTimestamptzHelpers(t *testing.T) {
	assert.False(t, timeToPgTimestamptz(time.Time{}).Valid)
	assert.False(t, optionalTimestamptz(nil).Valid)
	assert.Nil(t, optionalTime(pgtype.Timestamptz{}))

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got := optionalTime(optionalTimestamptz(&now))
	if assert.NotNil(t, got) {
		assert.True(t, now.Equal(*got))
	}
}
