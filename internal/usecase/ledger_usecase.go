package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/infrastructure/metrics"
)

// LedgerDeps wires a LedgerUseCase.
type LedgerDeps struct {
	TxManager    TransactionManager
	Accounts     AccountRepository
	Transactions TransactionRepository
	Entries      EntryRepository
	Outbox       OutboxRepository
	IDGen        IDGenerator
	Retrier      Retrier
	Currencies   domain.Currencies
	HouseUserID  string
	TxTimeout    time.Duration
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// LedgerUseCase is the only writer of account balances.
type LedgerUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	txRepo      TransactionRepository
	entryRepo   EntryRepository
	outboxRepo  OutboxRepository
	idGen       IDGenerator
	retrier     Retrier
	currencies  domain.Currencies
	houseUserID string
	txTimeout   time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(deps LedgerDeps) *LedgerUseCase {
	uc := &LedgerUseCase{
		txManager:   deps.TxManager,
		accountRepo: deps.Accounts,
		txRepo:      deps.Transactions,
		entryRepo:   deps.Entries,
		outboxRepo:  deps.Outbox,
		idGen:       deps.IDGen,
		retrier:     deps.Retrier,
		currencies:  deps.Currencies,
		houseUserID: deps.HouseUserID,
		txTimeout:   deps.TxTimeout,
		logger:      deps.Logger.With().Str("component", "ledger").Logger(),
		metrics:     deps.Metrics,
		now:         deps.Now,
	}
	if uc.houseUserID == "" {
		uc.houseUserID = DefaultHouseUserID
	}
	if uc.txTimeout <= 0 {
		uc.txTimeout = DefaultTransactionTimeout
	}
	if uc.now == nil {
		uc.now = func() time.Time { return time.Now().UTC() }
	}
	return uc
}

// HouseUserID returns the reserved counterparty user.
func (uc *LedgerUseCase) HouseUserID() string {
	return uc.houseUserID
}

// ExecuteTransactionInput represents input for executing a transaction.
// Amount is a magnitude; its sign is ignored.
type ExecuteTransactionInput struct {
	UserID            string
	Type              domain.TransactionType
	Currency          string
	Amount            decimal.Decimal
	Description       string
	ExternalReference *string
	Metadata          map[string]any
}

// ExecuteTransactionResult is what one executed transaction produced.
type ExecuteTransactionResult struct {
	Transaction   *domain.Transaction
	Entry         *domain.LedgerEntry
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// ExecuteTransaction applies one balance-changing event atomically.
// Conflicts with concurrent writers surface as domain.ErrSerializationConflict.
func (uc *LedgerUseCase) ExecuteTransaction(ctx context.Context, input ExecuteTransactionInput) (*ExecuteTransactionResult, error) {
	start := time.Now()

	result, err := uc.executeTransaction(ctx, input)
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.TransactionErrors.WithLabelValues(errorLabel(err)).Inc()
		}
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsExecuted.WithLabelValues(string(result.Transaction.Type)).Inc()
		uc.metrics.TransactionDuration.Observe(time.Since(start).Seconds())
		amount, _ := result.Entry.Amount.Float64()
		uc.metrics.TransactionAmount.WithLabelValues(result.Entry.Currency).Observe(amount)
	}

	return result, nil
}

// ExecuteTransactionWithRetry retries ExecuteTransaction on serialization conflicts.
// Intended for asynchronous callers; synchronous paths call ExecuteTransaction.
func (uc *LedgerUseCase) ExecuteTransactionWithRetry(ctx context.Context, input ExecuteTransactionInput) (*ExecuteTransactionResult, error) {
	if uc.retrier == nil {
		return uc.ExecuteTransaction(ctx, input)
	}

	var result *ExecuteTransactionResult
	err := uc.retrier.Retry(ctx, func() error {
		r, err := uc.ExecuteTransaction(ctx, input)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *LedgerUseCase) executeTransaction(ctx context.Context, input ExecuteTransactionInput) (*ExecuteTransactionResult, error) {
	// 0. Validate inputs before starting transaction
	txType, err := domain.ParseTransactionType(string(input.Type))
	if err != nil {
		return nil, err
	}
	direction, err := txType.Direction()
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}
	currency := domain.NormalizeCurrency(input.Currency)
	if err := uc.currencies.Validate(currency); err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" || userID == uc.houseUserID {
		return nil, fmt.Errorf("%w: user id %q", domain.ErrInvalidInput, input.UserID)
	}
	if err := domain.ValidateMetadata(input.Metadata); err != nil {
		return nil, err
	}
	if len(input.Description) > domain.MaxDescriptionLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", domain.ErrInvalidInput, domain.MaxDescriptionLen)
	}

	amount := input.Amount.Abs()
	signed := direction.Signed(amount)

	// 1. Begin transaction with timeout
	txCtx, cancel := context.WithTimeout(ctx, uc.txTimeout)
	defer cancel()

	tx, err := uc.txManager.BeginLocking(txCtx)
	if err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	now := uc.now()

	// 2. Lock the user account, then the house account (DEADLOCK PREVENTION)
	accounts, err := uc.lockAccounts(txCtx, tx, now, userID, currency)
	if err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}
	user := accounts[domain.AccountKey(userID, currency)]
	house := accounts[domain.AccountKey(uc.houseUserID, currency)]

	// 3. Sufficient funds
	if direction == domain.DirectionDebit {
		if err := user.ValidateDebit(amount); err != nil {
			return nil, err
		}
	}

	balanceBefore := user.Available
	balanceAfter := user.ApplyCredit(amount)
	if direction == domain.DirectionDebit {
		balanceAfter = user.ApplyDebit(amount)
	}

	// 4. Transaction row
	transaction := &domain.Transaction{
		ID:                uc.idGen.Generate(),
		UserID:            userID,
		Type:              txType,
		Currency:          currency,
		Amount:            signed,
		BalanceBefore:     balanceBefore,
		BalanceAfter:      balanceAfter,
		ExternalReference: input.ExternalReference,
		Description:       input.Description,
		Metadata:          input.Metadata,
		CreatedAt:         now,
	}
	if err := uc.txRepo.Create(txCtx, tx, transaction); err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}

	// 5. One joint entry: money flows from the debit account to the credit account
	entry := &domain.LedgerEntry{
		ID:            uc.idGen.Generate(),
		TransactionID: transaction.ID,
		Amount:        amount,
		Currency:      currency,
		CreatedAt:     now,
	}
	if direction == domain.DirectionDebit {
		entry.DebitAccountID, entry.CreditAccountID = user.ID, house.ID
	} else {
		entry.DebitAccountID, entry.CreditAccountID = house.ID, user.ID
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := uc.entryRepo.Create(txCtx, tx, entry); err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}

	// 6. Opposite deltas keep the system zero-sum
	updatedUser, err := uc.accountRepo.AdjustBalance(txCtx, tx, user.ID, signed, decimal.Zero, now)
	if err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}
	updatedHouse, err := uc.accountRepo.AdjustBalance(txCtx, tx, house.ID, signed.Neg(), decimal.Zero, now)
	if err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}

	// 7. Re-verify both accounts against the entry log before committing
	for _, acc := range []*domain.Account{updatedUser, updatedHouse} {
		if err := uc.verifyInTx(txCtx, tx, acc); err != nil {
			var mismatch *domain.BalanceMismatchError
			if errors.As(err, &mismatch) {
				uc.logger.Error().
					Str("account_id", mismatch.AccountID).
					Str("stored", mismatch.Stored.String()).
					Str("calculated", mismatch.Calculated.String()).
					Str("transaction_id", transaction.ID).
					Msg("ledger inconsistency detected, aborting transaction")
				if uc.metrics != nil {
					uc.metrics.LedgerInconsistencies.Inc()
				}
				return nil, fmt.Errorf("%w: %w", domain.ErrLedgerInconsistency, err)
			}
			return nil, uc.wrapTxError(txCtx, err)
		}
	}

	// 8. Outbox event in the same transaction
	event := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   transaction.ID,
		AggregateType: domain.AggregateTypeTransaction,
		EventType:     domain.EventTypeTransactionExecuted,
		Payload: map[string]any{
			"transaction_id":    transaction.ID,
			"entry_id":          entry.ID,
			"user_id":           userID,
			"type":              string(txType),
			"currency":          currency,
			"amount":            signed.String(),
			"balance_before":    balanceBefore.String(),
			"balance_after":     balanceAfter.String(),
			"credit_account_id": entry.CreditAccountID,
			"debit_account_id":  entry.DebitAccountID,
			"event_at":          now.Format(time.RFC3339Nano),
		},
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}

	uc.logger.Debug().
		Str("transaction_id", transaction.ID).
		Str("user_id", userID).
		Str("type", string(txType)).
		Str("amount", signed.String()).
		Str("balance_after", balanceAfter.String()).
		Msg("transaction executed")

	return &ExecuteTransactionResult{
		Transaction:   transaction,
		Entry:         entry,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
	}, nil
}

// lockAccounts gets or creates the user and house accounts. Every writer locks
// exactly one user row before the house row, so the house row is held for the
// shortest time and lock order is the same for all writers.
func (uc *LedgerUseCase) lockAccounts(ctx context.Context, tx Transaction, now time.Time, userID, currency string) (map[string]*domain.Account, error) {
	owners := []string{userID, uc.houseUserID}

	accounts := make(map[string]*domain.Account, len(owners))
	for _, owner := range owners {
		template := domain.NewAccount(uc.idGen.Generate(), owner, currency, owner == uc.houseUserID, now)

		acc, created, err := uc.accountRepo.GetOrCreateForUpdate(ctx, tx, template)
		if err != nil {
			return nil, err
		}
		if created {
			if err := uc.emitAccountCreated(ctx, tx, acc, now); err != nil {
				return nil, err
			}
		}
		accounts[acc.Key()] = acc
	}
	return accounts, nil
}

func (uc *LedgerUseCase) emitAccountCreated(ctx context.Context, tx Transaction, acc *domain.Account, now time.Time) error {
	event := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   acc.ID,
		AggregateType: domain.AggregateTypeAccount,
		EventType:     domain.EventTypeAccountCreated,
		Payload: map[string]any{
			"account_id": acc.ID,
			"user_id":    acc.UserID,
			"currency":   acc.Currency,
		},
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Create(ctx, tx, event); err != nil {
		return err
	}
	if uc.metrics != nil {
		uc.metrics.AccountsCreated.Inc()
	}
	return nil
}

func (uc *LedgerUseCase) verifyInTx(ctx context.Context, tx Transaction, acc *domain.Account) error {
	sums, err := uc.entryRepo.SumByAccount(ctx, tx, acc.ID)
	if err != nil {
		return err
	}
	return checkAccountBalance(acc, sums)
}

// LockBalance moves amount from available to locked.
func (uc *LedgerUseCase) LockBalance(ctx context.Context, userID, currency string, amount decimal.Decimal) (*domain.Account, error) {
	return uc.moveLocked(ctx, userID, currency, amount, true)
}

// UnlockBalance moves amount from locked back to available.
func (uc *LedgerUseCase) UnlockBalance(ctx context.Context, userID, currency string, amount decimal.Decimal) (*domain.Account, error) {
	return uc.moveLocked(ctx, userID, currency, amount, false)
}

func (uc *LedgerUseCase) moveLocked(ctx context.Context, userID, currency string, amount decimal.Decimal, lock bool) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	currency = domain.NormalizeCurrency(currency)

	operation := "unlock"
	eventType := domain.EventTypeBalanceUnlocked
	if lock {
		operation = "lock"
		eventType = domain.EventTypeBalanceLocked
	}

	// Add transaction timeout
	txCtx, cancel := context.WithTimeout(ctx, uc.txTimeout)
	defer cancel()

	tx, err := uc.txManager.BeginLocking(txCtx)
	if err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	account, err := uc.accountRepo.GetForUpdate(txCtx, tx, userID, currency)
	if err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}

	availableDelta, lockedDelta := amount.Neg(), amount
	if lock {
		err = account.ValidateLock(amount)
	} else {
		err = account.ValidateUnlock(amount)
		availableDelta, lockedDelta = amount, amount.Neg()
	}
	if err != nil {
		return nil, err
	}

	now := uc.now()
	updated, err := uc.accountRepo.AdjustBalance(txCtx, tx, account.ID, availableDelta, lockedDelta, now)
	if err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}

	event := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   account.ID,
		AggregateType: domain.AggregateTypeAccount,
		EventType:     eventType,
		Payload: map[string]any{
			"account_id": account.ID,
			"user_id":    account.UserID,
			"currency":   account.Currency,
			"amount":     amount.String(),
			"available":  updated.Available.String(),
			"locked":     updated.Locked.String(),
		},
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, uc.wrapTxError(txCtx, err)
	}

	if uc.metrics != nil {
		uc.metrics.BalanceOperations.WithLabelValues(operation).Inc()
	}

	return updated, nil
}

// GetBalance returns the account for (userID, currency).
func (uc *LedgerUseCase) GetBalance(ctx context.Context, userID, currency string) (*domain.Account, error) {
	return uc.accountRepo.GetByUserCurrency(ctx, userID, domain.NormalizeCurrency(currency))
}

// wrapTxError turns an expired atomic scope into domain.ErrTransactionTimeout.
func (uc *LedgerUseCase) wrapTxError(txCtx context.Context, err error) error {
	if errors.Is(txCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTransactionTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrTransactionTimeout, err)
	}
	return err
}
