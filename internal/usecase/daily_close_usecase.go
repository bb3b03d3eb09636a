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

// Daily close steps
const (
	StepStart          = "start"
	StepReconciliation = "reconciliation"
	StepSnapshot       = "snapshot"
	StepSummary        = "summary"
	StepIntegrity      = "integrity"
	StepVariance       = "variance"
	StepUnreconciled   = "unreconciled"
	StepExport         = "export"
	StepPersist        = "persist"
)

// DailyCloseConfig holds daily close tunables.
type DailyCloseConfig struct {
	Currencies  []string
	HouseUserID string
	Location    *time.Location
	StaleAfter  time.Duration
	LockTTL     time.Duration
	TxTimeout   time.Duration
}

// DailyCloseDeps wires a DailyCloseUseCase.
type DailyCloseDeps struct {
	TxManager       TransactionManager
	Accounts        AccountRepository
	Transactions    TransactionRepository
	Entries         EntryRepository
	Closes          DailyCloseRepository
	Snapshots       SnapshotRepository
	Reconciliations ReconciliationRepository
	Payments        PaymentRepository
	Outbox          OutboxRepository
	IDGen           IDGenerator
	Integrity       IntegrityVerifier
	Reconciler      DayReconciler
	Exporter        Exporter
	Locker          Locker
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

// DailyCloseUseCase runs the end-of-day workflow for one calendar date.
type DailyCloseUseCase struct {
	deps DailyCloseDeps
	cfg  DailyCloseConfig
	log  zerolog.Logger
}

// NewDailyCloseUseCase creates a new DailyCloseUseCase.
func NewDailyCloseUseCase(deps DailyCloseDeps, cfg DailyCloseConfig) *DailyCloseUseCase {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HouseUserID == "" {
		cfg.HouseUserID = DefaultHouseUserID
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultCloseStaleAfter
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultCloseLockTTL
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = DefaultTransactionTimeout
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	cfg.Currencies = domain.NormalizeCurrencies(cfg.Currencies)
	return &DailyCloseUseCase{
		deps: deps,
		cfg:  cfg,
		log:  deps.Logger.With().Str("component", "daily_close").Logger(),
	}
}

// RunDailyCloseInput represents input for a daily close run.
type RunDailyCloseInput struct {
	Date                  string
	Force                 bool
	IncludeReconciliation bool
	Progress              ProgressFunc
}

// DailyCloseResult is the outcome of a daily close run.
type DailyCloseResult struct {
	Close          *domain.DailyClose
	Reconciliation *domain.ReconciliationResult
}

// stepError marks the step an error came from.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// RunDailyClose executes the close for input.Date.
// A failed integrity check yields a FAILED close and a nil error.
func (uc *DailyCloseUseCase) RunDailyClose(ctx context.Context, input RunDailyCloseInput) (*DailyCloseResult, error) {
	start, end, err := domain.DayWindow(input.Date, uc.cfg.Location)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, logger.CloseDateKey, input.Date)
	log := logger.FromContext(ctx, uc.log)

	token, ok, err := uc.deps.Locker.TryLock(ctx, DateLockKey(input.Date), uc.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire close lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is locked by another run", domain.ErrLockNotAcquired, DateLockKey(input.Date))
	}
	defer func() {
		if err := uc.deps.Locker.Unlock(context.WithoutCancel(ctx), DateLockKey(input.Date), token); err != nil {
			log.Warn().Err(err).Msg("failed to release close lock")
		}
	}()

	record, err := uc.begin(ctx, input)
	if err != nil {
		return nil, err
	}

	runStart := time.Now()
	log.Info().Bool("force", input.Force).Bool("include_reconciliation", input.IncludeReconciliation).Msg("daily close started")

	result := &DailyCloseResult{Close: record}
	if err := uc.runSteps(ctx, input, record, result, start, end); err != nil {
		step := StepPersist
		var se *stepError
		if errors.As(err, &se) {
			step = se.step
			err = se.err
		}
		uc.fail(ctx, record, step, err)
		uc.observeRun(record.Status, runStart)
		log.Error().Err(err).Str("step", step).Msg("daily close failed")
		return nil, fmt.Errorf("daily close %s failed at %s: %w", input.Date, step, err)
	}

	uc.observeRun(record.Status, runStart)
	log.Info().
		Str("status", string(record.Status)).
		Bool("ledger_integrity", record.LedgerIntegrity).
		Int64("unreconciled", record.UnreconciledCount).
		Str("export_path", record.ExportPath).
		Msg("daily close finished")

	return result, nil
}

// begin performs the absent/FAILED/stale -> IN_PROGRESS transition.
func (uc *DailyCloseUseCase) begin(ctx context.Context, input RunDailyCloseInput) (*domain.DailyClose, error) {
	txCtx, cancel := context.WithTimeout(ctx, uc.cfg.TxTimeout)
	defer cancel()

	tx, err := uc.deps.TxManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	now := uc.deps.Now()

	existing, err := uc.deps.Closes.GetByDateForUpdate(txCtx, tx, input.Date)
	switch {
	case errors.Is(err, domain.ErrDailyCloseNotFound):
	case err != nil:
		return nil, err
	case existing.Status == domain.DailyCloseStatusCompleted && !input.Force:
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyCompleted, input.Date)
	case existing.Status == domain.DailyCloseStatusInProgress && !existing.IsStale(now, uc.cfg.StaleAfter):
		return nil, fmt.Errorf("%w: %s started at %s", domain.ErrCloseInProgress, input.Date, existing.StartedAt.Format(time.RFC3339))
	}

	record := &domain.DailyClose{
		Date:                  input.Date,
		Status:                domain.DailyCloseStatusInProgress,
		Forced:                input.Force,
		IncludeReconciliation: input.IncludeReconciliation,
		StartedAt:             now,
		UpdatedAt:             now,
	}
	if err := uc.deps.Closes.Upsert(txCtx, tx, record); err != nil {
		return nil, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	return record, nil
}

func (uc *DailyCloseUseCase) runSteps(ctx context.Context, input RunDailyCloseInput, record *domain.DailyClose, result *DailyCloseResult, start, end time.Time) error {
	progress := func(pct int) {
		if input.Progress != nil {
			input.Progress(ctx, pct)
		}
	}
	step := func(name string, fn func() error) error {
		began := time.Now()
		uc.log.Debug().Str("close_date", record.Date).Str("step", name).Msg("step started")
		if err := fn(); err != nil {
			return &stepError{step: name, err: err}
		}
		if uc.deps.Metrics != nil {
			uc.deps.Metrics.DailyCloseStepDuration.WithLabelValues(name).Observe(time.Since(began).Seconds())
		}
		return nil
	}

	progress(0)

	if input.IncludeReconciliation && uc.deps.Reconciler != nil {
		if err := step(StepReconciliation, func() error {
			r, err := uc.deps.Reconciler.ReconcileDay(ctx, record.Date)
			result.Reconciliation = r
			return err
		}); err != nil {
			return err
		}
		progress(10)
	}

	if err := step(StepSnapshot, func() error { return uc.snapshot(ctx, record, end) }); err != nil {
		return err
	}
	progress(30)

	if err := step(StepSummary, func() error {
		summary, err := uc.summary(ctx, start, end)
		record.Summary = summary
		return err
	}); err != nil {
		return err
	}
	progress(50)

	var integrity *domain.IntegrityResult
	if err := step(StepIntegrity, func() error {
		var err error
		integrity, err = uc.deps.Integrity.VerifyLedgerIntegrity(ctx)
		return err
	}); err != nil {
		return err
	}
	record.Integrity = integrity
	record.LedgerIntegrity = integrity.IsValid
	progress(65)

	if err := step(StepVariance, func() error {
		v, err := uc.variance(ctx, record)
		record.Variance = v
		return err
	}); err != nil {
		return err
	}
	progress(75)

	if err := step(StepUnreconciled, func() error {
		n, err := uc.unreconciledCount(ctx)
		record.UnreconciledCount = n
		return err
	}); err != nil {
		return err
	}
	progress(85)

	if err := step(StepExport, func() error {
		path, err := uc.deps.Exporter.Export(ctx, &domain.DailyCloseReport{
			Date:        record.Date,
			GeneratedAt: uc.deps.Now(),
			Summary:     record.Summary,
			Integrity:   integrity,
		})
		record.ExportPath = path
		return err
	}); err != nil {
		return err
	}
	progress(95)

	if err := step(StepPersist, func() error { return uc.persist(ctx, record) }); err != nil {
		return err
	}
	progress(100)

	return nil
}

// snapshot writes one row per account with cumulative totals as of end.
func (uc *DailyCloseUseCase) snapshot(ctx context.Context, record *domain.DailyClose, end time.Time) error {
	totals, err := uc.deps.Transactions.TotalsByUser(ctx, nil, end)
	if err != nil {
		return fmt.Errorf("cumulative totals: %w", err)
	}
	byKey := make(map[string]domain.UserTypeTotals, len(totals))
	for _, t := range totals {
		byKey[domain.AccountKey(t.UserID, t.Currency)] = t
	}

	sums, err := uc.deps.Entries.SumsByAccount(ctx, nil, &end)
	if err != nil {
		return fmt.Errorf("entry sums: %w", err)
	}

	stats, err := uc.deps.Transactions.Stats(ctx, nil, end)
	if err != nil {
		return fmt.Errorf("ledger stats: %w", err)
	}

	now := uc.deps.Now()
	balances := make(map[string]*domain.CurrencyBalance)
	var order []string
	var snapshots []*domain.BalanceSnapshot

	for offset := 0; ; offset += accountPageSize {
		accounts, err := uc.deps.Accounts.List(ctx, nil, accountPageSize, offset)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		for _, acc := range accounts {
			if !acc.CreatedAt.Before(end) {
				continue
			}
			t := byKey[acc.Key()]
			balance := sums[acc.ID].Balance()
			snapshots = append(snapshots, &domain.BalanceSnapshot{
				CloseDate:   record.Date,
				AccountID:   acc.ID,
				UserID:      acc.UserID,
				Currency:    acc.Currency,
				Deposits:    t.Amount(domain.TransactionTypeDeposit),
				Withdrawals: t.Amount(domain.TransactionTypeWithdrawal),
				Bets:        t.Amount(domain.TransactionTypeBet),
				Wins:        t.Amount(domain.TransactionTypeWin),
				Bonuses:     t.Amount(domain.TransactionTypeBonus),
				Balance:     balance,
				CreatedAt:   now,
			})

			cb, ok := balances[acc.Currency]
			if !ok {
				cb = &domain.CurrencyBalance{Currency: acc.Currency, UserTotal: decimal.Zero, HouseBalance: decimal.Zero}
				balances[acc.Currency] = cb
				order = append(order, acc.Currency)
			}
			cb.AccountCount++
			if acc.UserID == uc.cfg.HouseUserID {
				cb.HouseBalance = cb.HouseBalance.Add(balance)
			} else {
				cb.UserTotal = cb.UserTotal.Add(balance)
			}
		}
		if len(accounts) < accountPageSize {
			break
		}
	}

	txCtx, cancel := context.WithTimeout(ctx, uc.cfg.TxTimeout)
	defer cancel()

	tx, err := uc.deps.TxManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.deps.Snapshots.ReplaceForDate(txCtx, tx, record.Date, snapshots); err != nil {
		return fmt.Errorf("write snapshots: %w", err)
	}
	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	record.Balances = make([]domain.CurrencyBalance, 0, len(order))
	for _, c := range order {
		record.Balances = append(record.Balances, *balances[c])
	}
	record.TotalUsers = stats.TotalUsers
	record.TotalTransactions = stats.TotalTransactions
	return nil
}

// summary totals same-day transactions per supported currency.
func (uc *DailyCloseUseCase) summary(ctx context.Context, start, end time.Time) ([]domain.CurrencySummary, error) {
	totals, err := uc.deps.Transactions.TotalsByType(ctx, nil, start, end)
	if err != nil {
		return nil, err
	}

	byCurrency := make(map[string]map[domain.TransactionType]decimal.Decimal)
	for _, t := range totals {
		m, ok := byCurrency[t.Currency]
		if !ok {
			m = make(map[domain.TransactionType]decimal.Decimal)
			byCurrency[t.Currency] = m
		}
		m[t.Type] = m[t.Type].Add(t.Total.Abs())
	}

	summary := make([]domain.CurrencySummary, 0, len(uc.cfg.Currencies))
	for _, currency := range uc.cfg.Currencies {
		m := byCurrency[currency]
		summary = append(summary, domain.NewCurrencySummary(
			currency,
			m[domain.TransactionTypeDeposit],
			m[domain.TransactionTypeWithdrawal],
			m[domain.TransactionTypeBet],
			m[domain.TransactionTypeWin],
			m[domain.TransactionTypeBonus],
		))
	}
	return summary, nil
}

// variance compares NGR against the previous date's close, if any.
func (uc *DailyCloseUseCase) variance(ctx context.Context, record *domain.DailyClose) (*domain.Variance, error) {
	prevDate, err := domain.PreviousDate(record.Date)
	if err != nil {
		return nil, err
	}
	prev, err := uc.deps.Closes.GetByDate(ctx, prevDate)
	if errors.Is(err, domain.ErrDailyCloseNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(prev.Summary) == 0 {
		return nil, nil
	}
	return domain.ComputeVariance(prevDate, record.Summary, prev.Summary), nil
}

// unreconciledCount is a global gauge of outstanding payment work.
func (uc *DailyCloseUseCase) unreconciledCount(ctx context.Context) (int64, error) {
	pending, err := uc.deps.Payments.CountConfirmationsByStatus(ctx, domain.ConfirmationPending)
	if err != nil {
		return 0, err
	}
	open, err := uc.deps.Reconciliations.CountByStatus(ctx, domain.ReconciliationStatusUnreconciled)
	if err != nil {
		return 0, err
	}
	if uc.deps.Metrics != nil {
		uc.deps.Metrics.UnreconciledItems.Set(float64(pending + open))
	}
	return pending + open, nil
}

// persist stores the final record and its outcome event.
func (uc *DailyCloseUseCase) persist(ctx context.Context, record *domain.DailyClose) error {
	now := uc.deps.Now()
	record.Status = domain.DailyCloseStatusCompleted
	record.ErrorDetails = nil
	if !record.LedgerIntegrity {
		record.Status = domain.DailyCloseStatusFailed
		record.ErrorDetails = &domain.ErrorDetails{
			Step:    StepIntegrity,
			Message: integrityMessage(record.Integrity),
		}
	}
	record.CompletedAt = &now
	record.UpdatedAt = now

	return uc.save(ctx, record)
}

// fail records a step failure. Errors here are logged; the step error wins.
func (uc *DailyCloseUseCase) fail(ctx context.Context, record *domain.DailyClose, step string, cause error) {
	now := uc.deps.Now()
	record.Status = domain.DailyCloseStatusFailed
	record.ErrorDetails = &domain.ErrorDetails{Step: step, Message: cause.Error()}
	record.CompletedAt = &now
	record.UpdatedAt = now

	if err := uc.save(context.WithoutCancel(ctx), record); err != nil {
		uc.log.Error().Err(err).Str("close_date", record.Date).Msg("failed to record daily close failure")
	}
}

func (uc *DailyCloseUseCase) save(ctx context.Context, record *domain.DailyClose) error {
	txCtx, cancel := context.WithTimeout(ctx, uc.cfg.TxTimeout)
	defer cancel()

	tx, err := uc.deps.TxManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.deps.Closes.Upsert(txCtx, tx, record); err != nil {
		return err
	}

	eventType := domain.EventTypeDailyCloseCompleted
	if record.Status == domain.DailyCloseStatusFailed {
		eventType = domain.EventTypeDailyCloseFailed
	}
	payload := map[string]any{
		"date":               record.Date,
		"status":             string(record.Status),
		"ledger_integrity":   record.LedgerIntegrity,
		"unreconciled_count": record.UnreconciledCount,
		"export_path":        record.ExportPath,
	}
	if record.ErrorDetails != nil {
		payload["error"] = record.ErrorDetails.Step + ": " + record.ErrorDetails.Message
	}
	event := &domain.OutboxEvent{
		ID:            uc.deps.IDGen.Generate(),
		AggregateID:   record.Date,
		AggregateType: domain.AggregateTypeDailyClose,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     record.UpdatedAt,
	}
	if err := uc.deps.Outbox.Create(txCtx, tx, event); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

func (uc *DailyCloseUseCase) observeRun(status domain.DailyCloseStatus, began time.Time) {
	if uc.deps.Metrics == nil {
		return
	}
	uc.deps.Metrics.DailyCloseRuns.WithLabelValues(string(status)).Inc()
	uc.deps.Metrics.DailyCloseDuration.Observe(time.Since(began).Seconds())
}

func integrityMessage(r *domain.IntegrityResult) string {
	if r == nil {
		return "ledger integrity not verified"
	}
	return fmt.Sprintf("ledger integrity check failed: imbalance=%s account_imbalances=%d",
		r.Imbalance.String(), len(r.AccountImbalances))
}

// GetDailyClose returns the close for date.
func (uc *DailyCloseUseCase) GetDailyClose(ctx context.Context, date string) (*domain.DailyClose, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	return uc.deps.Closes.GetByDate(ctx, date)
}

// ListDailyCloses lists closes newest first.
func (uc *DailyCloseUseCase) ListDailyCloses(ctx context.Context, filter domain.DailyCloseFilter) ([]*domain.DailyClose, error) {
	for _, d := range []string{filter.From, filter.To} {
		if d == "" {
			continue
		}
		if _, err := domain.ParseDate(d); err != nil {
			return nil, err
		}
	}
	filter.Limit, _ = domain.ValidatePagination(filter.Limit, 0, defaultCloseListLimit, maxCloseListLimit)
	return uc.deps.Closes.List(ctx, filter)
}
