package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/infrastructure/logger"
	"github.com/iho/gameledger/internal/infrastructure/metrics"
)

// ReconciliationDeps wires a ReconciliationUseCase.
type ReconciliationDeps struct {
	TxManager       TransactionManager
	Payments        PaymentRepository
	Transactions    TransactionRepository
	Reconciliations ReconciliationRepository
	Outbox          OutboxRepository
	IDGen           IDGenerator
	Locker          Locker
	Location        *time.Location
	LockTTL         time.Duration
	TxTimeout       time.Duration
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

// ReconciliationUseCase matches payment confirmations against ledger transactions.
type ReconciliationUseCase struct {
	deps ReconciliationDeps
	log  zerolog.Logger
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(deps ReconciliationDeps) *ReconciliationUseCase {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = DefaultCloseLockTTL
	}
	if deps.TxTimeout <= 0 {
		deps.TxTimeout = DefaultTransactionTimeout
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &ReconciliationUseCase{
		deps: deps,
		log:  deps.Logger.With().Str("component", "reconciliation").Logger(),
	}
}

type outcome int

const (
	outcomeReconciled outcome = iota
	outcomePending
	outcomeDiscrepancy
	outcomeOpenDiscrepancy
)

func (o outcome) String() string {
	switch o {
	case outcomeReconciled:
		return "reconciled"
	case outcomePending:
		return "pending"
	case outcomeDiscrepancy:
		return "discrepancy"
	default:
		return "open_discrepancy"
	}
}

// paymentItem is a deposit intent or withdrawal request reduced to what matching needs.
type paymentItem struct {
	kind     domain.ReconciliationEntryType
	txType   domain.TransactionType
	ref      string
	amount   decimal.Decimal
	currency string
	// settled means the payment subsystem considers the money moved.
	settled bool
	// missingSign is applied to the expected amount when a side is missing.
	missingSign int64
}

// RunFullReconciliation reconciles date under the per-date lock.
func (uc *ReconciliationUseCase) RunFullReconciliation(ctx context.Context, date string) (*domain.ReconciliationResult, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}

	token, ok, err := uc.deps.Locker.TryLock(ctx, DateLockKey(date), uc.deps.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire reconciliation lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is locked by another run", domain.ErrLockNotAcquired, DateLockKey(date))
	}
	defer func() {
		if err := uc.deps.Locker.Unlock(context.WithoutCancel(ctx), DateLockKey(date), token); err != nil {
			uc.log.Warn().Err(err).Str("close_date", date).Msg("failed to release reconciliation lock")
		}
	}()

	return uc.ReconcileDay(ctx, date)
}

// ReconcileDay reconciles deposits and withdrawals created on date.
// Per-item failures are collected in the result and do not abort the batch.
func (uc *ReconciliationUseCase) ReconcileDay(ctx context.Context, date string) (*domain.ReconciliationResult, error) {
	start, end, err := domain.DayWindow(date, uc.deps.Location)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, logger.CloseDateKey, date)
	log := logger.FromContext(ctx, uc.log)

	intents, err := uc.deps.Payments.ListDepositIntents(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list deposit intents: %w", err)
	}
	withdrawals, err := uc.deps.Payments.ListWithdrawalRequests(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list withdrawal requests: %w", err)
	}

	items := make([]paymentItem, 0, len(intents)+len(withdrawals))
	for _, in := range intents {
		items = append(items, paymentItem{
			kind:        domain.ReconciliationEntryDeposit,
			txType:      domain.TransactionTypeDeposit,
			ref:         in.ID,
			amount:      in.Amount,
			currency:    in.Currency,
			settled:     in.Status == domain.DepositIntentConfirmed,
			missingSign: -1,
		})
	}
	for _, w := range withdrawals {
		items = append(items, paymentItem{
			kind:        domain.ReconciliationEntryWithdrawal,
			txType:      domain.TransactionTypeWithdrawal,
			ref:         w.ID,
			amount:      w.Amount,
			currency:    w.Currency,
			settled:     w.Status == domain.WithdrawalCompleted,
			missingSign: 1,
		})
	}

	result := &domain.ReconciliationResult{Date: date}
	for _, item := range items {
		result.ProcessedCount++

		o, err := uc.reconcileItem(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.UnreconciledCount++
			result.Errors = append(result.Errors, domain.ReconciliationError{
				EntryType:   item.kind,
				ReferenceID: item.ref,
				Message:     err.Error(),
			})
			log.Warn().Err(err).Str("entry_type", string(item.kind)).Str("reference_id", item.ref).Msg("failed to reconcile item")
			uc.observeItem(item.kind, "error")
			continue
		}

		switch o {
		case outcomeReconciled:
			result.ReconciledCount++
		case outcomePending:
			result.PendingCount++
		case outcomeDiscrepancy:
			result.UnreconciledCount++
			result.DiscrepanciesCreated++
		case outcomeOpenDiscrepancy:
			result.UnreconciledCount++
		}
		uc.observeItem(item.kind, o.String())
	}

	log.Info().
		Int("processed", result.ProcessedCount).
		Int("reconciled", result.ReconciledCount).
		Int("unreconciled", result.UnreconciledCount).
		Int("pending", result.PendingCount).
		Int("discrepancies_created", result.DiscrepanciesCreated).
		Int("errors", len(result.Errors)).
		Msg("reconciliation finished")

	return result, nil
}

func (uc *ReconciliationUseCase) reconcileItem(ctx context.Context, item paymentItem) (outcome, error) {
	txCtx, cancel := context.WithTimeout(ctx, uc.deps.TxTimeout)
	defer cancel()

	tx, err := uc.deps.TxManager.Begin(txCtx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	now := uc.deps.Now()

	conf, err := uc.deps.Payments.GetConfirmation(txCtx, tx, item.kind, item.ref)
	if errors.Is(err, domain.ErrConfirmationNotFound) {
		if !item.settled {
			return outcomePending, nil
		}
		expected := item.amount.Abs()
		return uc.discrepancy(txCtx, tx, item, nil, discrepancyInput{
			expected: expected,
			actual:   decimal.Zero,
			variance: expected.Mul(decimal.NewFromInt(item.missingSign)),
			status:   domain.ReconciliationStatusUnreconciled,
			notes:    fmt.Sprintf("%s %s settled but no payment confirmation was received", item.kind, item.ref),
		}, now)
	}
	if err != nil {
		return 0, fmt.Errorf("get confirmation: %w", err)
	}

	// Terminal confirmations are not re-evaluated on re-runs.
	if conf.Status == domain.ConfirmationReconciled {
		return outcomeReconciled, nil
	}

	transaction, err := uc.deps.Transactions.FindByExternalReference(txCtx, tx, item.txType, item.ref)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		confirmed := conf.Amount.Abs()
		return uc.discrepancy(txCtx, tx, item, conf, discrepancyInput{
			expected:     confirmed,
			actual:       decimal.Zero,
			variance:     confirmed.Mul(decimal.NewFromInt(item.missingSign)),
			status:       domain.ReconciliationStatusUnreconciled,
			confirmation: domain.ConfirmationUnreconciled,
			notes:        fmt.Sprintf("confirmation for %s %s has no matching %s transaction", item.kind, item.ref, item.txType),
		}, now)
	}
	if err != nil {
		return 0, fmt.Errorf("find transaction: %w", err)
	}

	expected := conf.Amount.Abs()
	actual := transaction.Magnitude()
	if !domain.WithinTolerance(expected, actual) {
		return uc.discrepancy(txCtx, tx, item, conf, discrepancyInput{
			expected:     expected,
			actual:       actual,
			variance:     expected.Sub(actual),
			status:       domain.ReconciliationStatusVariance,
			confirmation: domain.ConfirmationVariance,
			transaction:  &transaction.ID,
			notes:        fmt.Sprintf("confirmed %s but ledger recorded %s", expected, actual),
		}, now)
	}

	conf.Status = domain.ConfirmationReconciled
	conf.TransactionID = &transaction.ID
	conf.UpdatedAt = now
	if err := uc.deps.Payments.UpdateConfirmation(txCtx, tx, conf); err != nil {
		return 0, fmt.Errorf("update confirmation: %w", err)
	}
	if err := tx.Commit(txCtx); err != nil {
		return 0, err
	}
	return outcomeReconciled, nil
}

type discrepancyInput struct {
	expected     decimal.Decimal
	actual       decimal.Decimal
	variance     decimal.Decimal
	status       domain.ReconciliationStatus
	confirmation domain.ConfirmationStatus
	transaction  *string
	notes        string
}

// discrepancy records one mismatch. An open entry for the same reference is
// rewritten in place instead of duplicated.
func (uc *ReconciliationUseCase) discrepancy(ctx context.Context, tx Transaction, item paymentItem, conf *domain.PaymentConfirmation, in discrepancyInput, now time.Time) (outcome, error) {
	if conf != nil && in.confirmation != "" && conf.Status != in.confirmation {
		conf.Status = in.confirmation
		if in.transaction != nil {
			conf.TransactionID = in.transaction
		}
		conf.UpdatedAt = now
		if err := uc.deps.Payments.UpdateConfirmation(ctx, tx, conf); err != nil {
			return 0, fmt.Errorf("update confirmation: %w", err)
		}
	}

	existing, err := uc.deps.Reconciliations.FindByReference(ctx, tx, item.kind, item.ref)
	switch {
	case err == nil:
		resolved := existing.Status == domain.ReconciliationStatusResolved
		if existing.Refresh(in.expected, in.actual, in.variance, in.status, in.notes, now) {
			if err := uc.deps.Reconciliations.Update(ctx, tx, existing); err != nil {
				return 0, fmt.Errorf("refresh reconciliation entry: %w", err)
			}
			uc.log.Info().
				Str("entry_id", existing.ID).
				Str("status", string(existing.Status)).
				Str("variance", existing.Variance.String()).
				Msg("reconciliation entry refreshed")
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		if resolved {
			return outcomeReconciled, nil
		}
		return outcomeOpenDiscrepancy, nil
	case !errors.Is(err, domain.ErrReconciliationEntryNotFound):
		return 0, fmt.Errorf("find reconciliation entry: %w", err)
	}

	currency := item.currency
	if conf != nil && conf.Currency != "" {
		currency = conf.Currency
	}
	entry := &domain.ReconciliationEntry{
		ID:             uc.deps.IDGen.Generate(),
		EntryType:      item.kind,
		ReferenceID:    item.ref,
		ExpectedAmount: in.expected,
		ActualAmount:   in.actual,
		Variance:       in.variance,
		Currency:       currency,
		Status:         in.status,
		Notes:          in.notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.deps.Reconciliations.Create(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("create reconciliation entry: %w", err)
	}

	event := &domain.OutboxEvent{
		ID:            uc.deps.IDGen.Generate(),
		AggregateID:   entry.ID,
		AggregateType: domain.AggregateTypeReconciliation,
		EventType:     domain.EventTypeDiscrepancyDetected,
		Payload: map[string]any{
			"entry_id":     entry.ID,
			"entry_type":   string(entry.EntryType),
			"reference_id": entry.ReferenceID,
			"status":       string(entry.Status),
			"variance":     entry.Variance.String(),
			"currency":     entry.Currency,
		},
		CreatedAt: now,
	}
	if err := uc.deps.Outbox.Create(ctx, tx, event); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	if uc.deps.Metrics != nil {
		uc.deps.Metrics.ReconciliationDiscrepancies.WithLabelValues(string(entry.EntryType), string(entry.Status)).Inc()
	}
	return outcomeDiscrepancy, nil
}

func (uc *ReconciliationUseCase) observeItem(kind domain.ReconciliationEntryType, o string) {
	if uc.deps.Metrics != nil {
		uc.deps.Metrics.ReconciliationItems.WithLabelValues(string(kind), o).Inc()
	}
}

// ListUnreconciled returns open entries, oldest first.
func (uc *ReconciliationUseCase) ListUnreconciled(ctx context.Context, limit int) ([]*domain.ReconciliationEntry, error) {
	limit, _ = domain.ValidatePagination(limit, 0, defaultUnreconciledLimit, maxUnreconciledLimit)
	return uc.deps.Reconciliations.ListOpen(ctx, limit)
}

// ResolveEntry closes an open entry on behalf of resolvedBy.
func (uc *ReconciliationUseCase) ResolveEntry(ctx context.Context, id, resolvedBy, resolution string) (*domain.ReconciliationEntry, error) {
	txCtx, cancel := context.WithTimeout(ctx, uc.deps.TxTimeout)
	defer cancel()

	tx, err := uc.deps.TxManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	entry, err := uc.deps.Reconciliations.GetByIDForUpdate(txCtx, tx, id)
	if err != nil {
		return nil, err
	}

	now := uc.deps.Now()
	if err := entry.Resolve(resolvedBy, resolution, now); err != nil {
		return nil, fmt.Errorf("resolve entry %s: %w", id, err)
	}
	if err := uc.deps.Reconciliations.Update(txCtx, tx, entry); err != nil {
		return nil, err
	}

	event := &domain.OutboxEvent{
		ID:            uc.deps.IDGen.Generate(),
		AggregateID:   entry.ID,
		AggregateType: domain.AggregateTypeReconciliation,
		EventType:     domain.EventTypeReconciliationResolved,
		Payload: map[string]any{
			"entry_id":    entry.ID,
			"resolved_by": *entry.ResolvedBy,
		},
		CreatedAt: now,
	}
	if err := uc.deps.Outbox.Create(txCtx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	uc.log.Info().Str("entry_id", entry.ID).Str("resolved_by", *entry.ResolvedBy).Msg("reconciliation entry resolved")
	return entry, nil
}
