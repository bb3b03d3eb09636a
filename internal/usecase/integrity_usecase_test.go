package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/gameledger/internal/domain"
)

func TestIntegrityUseCase_EmptyLedgerIsValid(t *testing.T) {
	f := newFixture(t)

	result, err := f.integrity.VerifyLedgerIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Zero(t, result.AccountsChecked)
	assert.NotNil(t, result.AccountImbalances)
}

func TestIntegrityUseCase_DetectsTamperedAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.exec(t, "u1", domain.TransactionTypeDeposit, "100")
	f.exec(t, "u2", domain.TransactionTypeDeposit, "40")
	f.exec(t, "u2", domain.TransactionTypeBet, "15")

	u2 := f.balance(t, "u2")
	f.store.CorruptBalance(u2.ID, dec("-0.5"))

	result, err := f.integrity.VerifyLedgerIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, 3, result.AccountsChecked)
	assertDecimal(t, "155", result.TotalCredits)
	assertDecimal(t, "155", result.TotalDebits)
	assert.True(t, result.Imbalance.IsZero(), "entry totals stay balanced")

	require.Len(t, result.AccountImbalances, 1)
	imb := result.AccountImbalances[0]
	assert.Equal(t, u2.ID, imb.AccountID)
	assert.Equal(t, "u2", imb.UserID)
	assertDecimal(t, "24.5", imb.StoredBalance)
	assertDecimal(t, "25", imb.CalculatedBalance)
	assertDecimal(t, "-0.5", imb.Imbalance)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IntegrityChecks.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AccountImbalances))
}

func TestIntegrityUseCase_ToleratesSubUnitDrift(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "u1", domain.TransactionTypeDeposit, "10")
	f.store.CorruptBalance(f.balance(t, "u1").ID, dec("0.000000001"))

	result, err := f.integrity.VerifyLedgerIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestIntegrityUseCase_VerifyAccountBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.exec(t, "u1", domain.TransactionTypeDeposit, "10")
	id := f.balance(t, "u1").ID

	require.NoError(t, f.integrity.VerifyAccountBalance(ctx, id))
	require.ErrorIs(t, f.integrity.VerifyAccountBalance(ctx, "missing"), domain.ErrAccountNotFound)

	f.store.CorruptBalance(id, dec("1"))
	err := f.integrity.VerifyAccountBalance(ctx, id)
	var mismatch *domain.BalanceMismatchError
	require.True(t, errors.As(err, &mismatch))
	assertDecimal(t, "11", mismatch.Stored)
	assertDecimal(t, "10", mismatch.Calculated)
}

func TestIntegrityUseCase_PropagatesRepositoryErrors(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("snapshot unavailable")
	f.store.FailOn("Begin", "", boom)

	_, err := f.integrity.VerifyLedgerIntegrity(context.Background())
	require.ErrorIs(t, err, boom)
}
