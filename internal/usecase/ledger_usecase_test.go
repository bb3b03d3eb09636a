package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/gameledger/internal/adapter/repository/memory"
	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/usecase"
)

func TestLedgerUseCase_DepositBetWin(t *testing.T) {
	f := newFixture(t)

	res := f.exec(t, "u1", domain.TransactionTypeDeposit, "1000")
	assertDecimal(t, "0", res.BalanceBefore)
	assertDecimal(t, "1000", res.BalanceAfter)
	assertDecimal(t, "1000", f.balance(t, "u1").Available)
	assertDecimal(t, "-1000", f.balance(t, "house").Available)

	res = f.exec(t, "u1", domain.TransactionTypeBet, "100")
	assertDecimal(t, "-100", res.Transaction.Amount)
	assertDecimal(t, "900", f.balance(t, "u1").Available)
	assertDecimal(t, "-900", f.balance(t, "house").Available)
	assert.Equal(t, f.balance(t, "u1").ID, res.Entry.DebitAccountID)
	assert.Equal(t, f.balance(t, "house").ID, res.Entry.CreditAccountID)

	res = f.exec(t, "u1", domain.TransactionTypeWin, "150")
	assertDecimal(t, "1050", f.balance(t, "u1").Available)
	assertDecimal(t, "-1050", f.balance(t, "house").Available)
	assert.Equal(t, f.balance(t, "house").ID, res.Entry.DebitAccountID)

	result, err := f.integrity.VerifyLedgerIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.Imbalance.IsZero())
	assert.Equal(t, 2, result.AccountsChecked)

	assert.Len(t, f.store.Events(domain.EventTypeTransactionExecuted), 3)
	assert.Len(t, f.store.Events(domain.EventTypeAccountCreated), 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.TransactionsExecuted.WithLabelValues("DEPOSIT"))+
		testutil.ToFloat64(f.metrics.TransactionsExecuted.WithLabelValues("BET"))+
		testutil.ToFloat64(f.metrics.TransactionsExecuted.WithLabelValues("WIN")))
}

func TestLedgerUseCase_ExecuteTransaction_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		input   usecase.ExecuteTransactionInput
		wantErr error
	}{
		{
			name:    "insufficient funds",
			input:   usecase.ExecuteTransactionInput{UserID: "u1", Type: domain.TransactionTypeWithdrawal, Currency: "USD", Amount: dec("100")},
			wantErr: domain.ErrInsufficientBalance,
		},
		{
			name:    "zero amount",
			input:   usecase.ExecuteTransactionInput{UserID: "u1", Type: domain.TransactionTypeBet, Currency: "USD", Amount: dec("0")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "amount above maximum",
			input:   usecase.ExecuteTransactionInput{UserID: "u1", Type: domain.TransactionTypeDeposit, Currency: "USD", Amount: dec("1000000000001")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "more decimals than the ledger stores",
			input:   usecase.ExecuteTransactionInput{UserID: "u1", Type: domain.TransactionTypeDeposit, Currency: "USD", Amount: dec("1.000000001")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "unknown type",
			input:   usecase.ExecuteTransactionInput{UserID: "u1", Type: "REFUND", Currency: "USD", Amount: dec("1")},
			wantErr: domain.ErrInvalidTransactionType,
		},
		{
			name:    "unsupported currency",
			input:   usecase.ExecuteTransactionInput{UserID: "u1", Type: domain.TransactionTypeDeposit, Currency: "JPY", Amount: dec("1")},
			wantErr: domain.ErrInvalidCurrency,
		},
		{
			name:    "house cannot transact with itself",
			input:   usecase.ExecuteTransactionInput{UserID: "house", Type: domain.TransactionTypeDeposit, Currency: "USD", Amount: dec("1")},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "empty user",
			input:   usecase.ExecuteTransactionInput{Type: domain.TransactionTypeDeposit, Currency: "USD", Amount: dec("1")},
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.exec(t, "u1", domain.TransactionTypeDeposit, "50")

			_, err := f.ledger.ExecuteTransaction(context.Background(), tt.input)
			require.ErrorIs(t, err, tt.wantErr)

			assertDecimal(t, "50", f.balance(t, "u1").Available)
			assert.Len(t, f.store.Events(domain.EventTypeTransactionExecuted), 1)
		})
	}
}

func TestLedgerUseCase_CurrencyIsNormalized(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.ExecuteTransaction(context.Background(), usecase.ExecuteTransactionInput{
		UserID: "u1", Type: domain.TransactionTypeDeposit, Currency: " usd ", Amount: dec("5"),
	})
	require.NoError(t, err)
	assertDecimal(t, "5", f.balance(t, "u1").Available)
}

func TestLedgerUseCase_ConcurrentBets(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "u1", domain.TransactionTypeDeposit, "1000")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ExecuteTransaction(context.Background(), usecase.ExecuteTransactionInput{
				UserID: "u1", Type: domain.TransactionTypeBet, Currency: "USD", Amount: dec("50"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assertDecimal(t, "500", f.balance(t, "u1").Available)

	result, err := f.integrity.VerifyLedgerIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestLedgerUseCase_ConcurrentBetsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "u1", domain.TransactionTypeDeposit, "100")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ExecuteTransaction(context.Background(), usecase.ExecuteTransactionInput{
				UserID: "u1", Type: domain.TransactionTypeBet, Currency: "USD", Amount: dec("30"),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 2, insufficient)
	assertDecimal(t, "10", f.balance(t, "u1").Available)
}

func TestLedgerUseCase_LockUnlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.exec(t, "u1", domain.TransactionTypeDeposit, "100")

	acc, err := f.ledger.LockBalance(ctx, "u1", "USD", dec("40"))
	require.NoError(t, err)
	assertDecimal(t, "60", acc.Available)
	assertDecimal(t, "40", acc.Locked)

	_, err = f.ledger.LockBalance(ctx, "u1", "USD", dec("61"))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.ledger.UnlockBalance(ctx, "u1", "USD", dec("41"))
	require.ErrorIs(t, err, domain.ErrInsufficientLockedBalance)

	acc, err = f.ledger.UnlockBalance(ctx, "u1", "USD", dec("40"))
	require.NoError(t, err)
	assertDecimal(t, "100", acc.Available)
	assertDecimal(t, "0", acc.Locked)

	_, err = f.ledger.LockBalance(ctx, "u1", "USD", dec("0"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.ledger.LockBalance(ctx, "u1", "USD", dec("0.123456789"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.ledger.LockBalance(ctx, "nobody", "USD", dec("1"))
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	assert.Len(t, f.store.Events(domain.EventTypeBalanceLocked), 1)
	assert.Len(t, f.store.Events(domain.EventTypeBalanceUnlocked), 1)

	// Locked funds are still the user's money as far as the entry log is concerned.
	_, err = f.ledger.LockBalance(ctx, "u1", "USD", dec("25"))
	require.NoError(t, err)
	result, err := f.integrity.VerifyLedgerIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestLedgerUseCase_LockedFundsCannotBeBet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.exec(t, "u1", domain.TransactionTypeDeposit, "100")

	_, err := f.ledger.LockBalance(ctx, "u1", "USD", dec("80"))
	require.NoError(t, err)

	_, err = f.ledger.ExecuteTransaction(ctx, usecase.ExecuteTransactionInput{
		UserID: "u1", Type: domain.TransactionTypeBet, Currency: "USD", Amount: dec("30"),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestLedgerUseCase_InconsistencyAbortsTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.exec(t, "u1", domain.TransactionTypeDeposit, "100")
	user := f.balance(t, "u1")

	f.store.CorruptBalance(user.ID, dec("5"))

	_, err := f.ledger.ExecuteTransaction(ctx, usecase.ExecuteTransactionInput{
		UserID: "u1", Type: domain.TransactionTypeBet, Currency: "USD", Amount: dec("10"),
	})
	require.ErrorIs(t, err, domain.ErrLedgerInconsistency)
	require.ErrorIs(t, err, domain.ErrBalanceMismatch)

	var mismatch *domain.BalanceMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, user.ID, mismatch.AccountID)
	assertDecimal(t, "5", mismatch.Difference)

	assertDecimal(t, "105", f.balance(t, "u1").Available)
	assert.Len(t, f.store.Events(domain.EventTypeTransactionExecuted), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LedgerInconsistencies))

	require.ErrorIs(t, f.integrity.VerifyAccountBalance(ctx, user.ID), domain.ErrBalanceMismatch)
}

func TestLedgerUseCase_RollsBackOnWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "u1", domain.TransactionTypeDeposit, "100")

	f.store.FailOn("CreateOutboxEvent", domain.EventTypeTransactionExecuted, errors.New("outbox unavailable"))

	_, err := f.ledger.ExecuteTransaction(context.Background(), usecase.ExecuteTransactionInput{
		UserID: "u1", Type: domain.TransactionTypeBet, Currency: "USD", Amount: dec("10"),
	})
	require.Error(t, err)

	f.store.ClearFaults()
	assertDecimal(t, "100", f.balance(t, "u1").Available)
	assertDecimal(t, "-100", f.balance(t, "house").Available)

	result, err := f.integrity.VerifyLedgerIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestLedgerUseCase_Timeout(t *testing.T) {
	f := newFixture(t)
	ledger := usecase.NewLedgerUseCase(usecase.LedgerDeps{
		TxManager:    f.txm,
		Accounts:     f.accounts,
		Transactions: f.txs,
		Entries:      f.entries,
		Outbox:       f.outbox,
		IDGen:        f.ids,
		Currencies:   domain.NewCurrencies([]string{"USD"}),
		TxTimeout:    20 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})

	held, err := f.txm.Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = held.Rollback(context.Background()) }()

	_, err = ledger.ExecuteTransaction(context.Background(), usecase.ExecuteTransactionInput{
		UserID: "u1", Type: domain.TransactionTypeDeposit, Currency: "USD", Amount: dec("1"),
	})
	require.ErrorIs(t, err, domain.ErrTransactionTimeout)
}

type conflictOnce struct {
	calls int
}

func (r *conflictOnce) Retry(ctx context.Context, op func() error) error {
	for {
		r.calls++
		err := op()
		if !errors.Is(err, domain.ErrSerializationConflict) || r.calls > 3 {
			return err
		}
	}
}

func TestLedgerUseCase_ExecuteTransactionWithRetry(t *testing.T) {
	f := newFixture(t)
	retrier := &conflictOnce{}
	ledger := usecase.NewLedgerUseCase(usecase.LedgerDeps{
		TxManager:    f.txm,
		Accounts:     f.accounts,
		Transactions: f.txs,
		Entries:      f.entries,
		Outbox:       f.outbox,
		IDGen:        f.ids,
		Retrier:      retrier,
		Currencies:   domain.NewCurrencies([]string{"USD"}),
		Logger:       zerolog.Nop(),
	})

	f.store.FailOn("Commit", "", domain.ErrSerializationConflict)

	_, err := ledger.ExecuteTransactionWithRetry(context.Background(), usecase.ExecuteTransactionInput{
		UserID: "u1", Type: domain.TransactionTypeDeposit, Currency: "USD", Amount: dec("1"),
	})
	require.ErrorIs(t, err, domain.ErrSerializationConflict)
	assert.Equal(t, 4, retrier.calls)

	f.store.ClearFaults()
	res, err := ledger.ExecuteTransactionWithRetry(context.Background(), usecase.ExecuteTransactionInput{
		UserID: "u1", Type: domain.TransactionTypeDeposit, Currency: "USD", Amount: dec("1"),
	})
	require.NoError(t, err)
	assertDecimal(t, "1", res.BalanceAfter)
}

func TestLedgerUseCase_ExternalReferenceLookup(t *testing.T) {
	f := newFixture(t)
	res := f.exec(t, "u1", domain.TransactionTypeDeposit, "25", "intent-1")

	found, err := f.txs.FindByExternalReference(context.Background(), nil, domain.TransactionTypeDeposit, "intent-1")
	require.NoError(t, err)
	assert.Equal(t, res.Transaction.ID, found.ID)

	entry, err := f.entries.GetByTransaction(context.Background(), res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Entry.ID, entry.ID)
}

type lockingTxManager struct {
	*memory.TxManager
	serializable int
	locking      int
}

func (m *lockingTxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	m.serializable++
	return m.TxManager.Begin(ctx)
}

func (m *lockingTxManager) BeginLocking(ctx context.Context) (usecase.Transaction, error) {
	m.locking++
	return m.TxManager.BeginLocking(ctx)
}

type lockOrderAccounts struct {
	*memory.AccountRepository
	owners []string
}

func (r *lockOrderAccounts) GetOrCreateForUpdate(ctx context.Context, tx usecase.Transaction, template *domain.Account) (*domain.Account, bool, error) {
	r.owners = append(r.owners, template.UserID)
	return r.AccountRepository.GetOrCreateForUpdate(ctx, tx, template)
}

func TestLedgerUseCase_WritesUnderRowLocksWithHouseLast(t *testing.T) {
	f := newFixture(t)
	txm := &lockingTxManager{TxManager: f.txm}
	accounts := &lockOrderAccounts{AccountRepository: f.accounts}
	ledger := usecase.NewLedgerUseCase(usecase.LedgerDeps{
		TxManager:    txm,
		Accounts:     accounts,
		Transactions: f.txs,
		Entries:      f.entries,
		Outbox:       f.outbox,
		IDGen:        f.ids,
		Currencies:   domain.NewCurrencies([]string{"USD"}),
		Logger:       zerolog.Nop(),
		Now:          f.now,
	})

	// "zed" sorts after "house"; the house row must still be locked last
	for _, user := range []string{"alice", "zed"} {
		_, err := ledger.ExecuteTransaction(context.Background(), usecase.ExecuteTransactionInput{
			UserID: user, Type: domain.TransactionTypeDeposit, Currency: "USD", Amount: dec("10"),
		})
		require.NoError(t, err)
	}
	_, err := ledger.LockBalance(context.Background(), "zed", "USD", dec("4"))
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "house", "zed", "house"}, accounts.owners)
	assert.Equal(t, 3, txm.locking)
	assert.Equal(t, 0, txm.serializable)
}
