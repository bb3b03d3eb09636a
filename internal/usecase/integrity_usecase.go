package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/infrastructure/metrics"
)

// IntegrityUseCase recomputes balances from the entry log and compares them with stored balances.
type IntegrityUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	entryRepo   EntryRepository
	ledgerRepo  LedgerRepository
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewIntegrityUseCase creates a new integrity use case
func NewIntegrityUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	entryRepo EntryRepository,
	ledgerRepo LedgerRepository,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *IntegrityUseCase {
	return &IntegrityUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		ledgerRepo:  ledgerRepo,
		logger:      logger.With().Str("component", "integrity").Logger(),
		metrics:     m,
	}
}

// checkAccountBalance compares the stored total against credits minus debits.
// Lock and unlock move funds within the account, so available plus locked is what entries explain.
func checkAccountBalance(acc *domain.Account, sums domain.EntrySums) error {
	calculated := sums.Balance()
	stored := acc.Total()
	if domain.WithinTolerance(stored, calculated) {
		return nil
	}
	return &domain.BalanceMismatchError{
		AccountID:  acc.ID,
		Stored:     stored,
		Calculated: calculated,
		Difference: stored.Sub(calculated),
	}
}

// VerifyAccountBalance returns a *domain.BalanceMismatchError when the account disagrees with its entries.
func (uc *IntegrityUseCase) VerifyAccountBalance(ctx context.Context, accountID string) error {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	sums, err := uc.entryRepo.SumByAccount(ctx, nil, accountID)
	if err != nil {
		return fmt.Errorf("sum entries for account %s: %w", accountID, err)
	}

	return checkAccountBalance(account, sums)
}

// VerifyLedgerIntegrity audits every account inside one read-only snapshot.
func (uc *IntegrityUseCase) VerifyLedgerIntegrity(ctx context.Context) (*domain.IntegrityResult, error) {
	start := time.Now()

	tx, err := uc.txManager.BeginSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	totalCredits, totalDebits, err := uc.ledgerRepo.Totals(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("ledger totals: %w", err)
	}

	sums, err := uc.entryRepo.SumsByAccount(ctx, tx, nil)
	if err != nil {
		return nil, fmt.Errorf("entry sums: %w", err)
	}

	result := &domain.IntegrityResult{
		TotalCredits:      totalCredits,
		TotalDebits:       totalDebits,
		Imbalance:         totalCredits.Sub(totalDebits),
		AccountImbalances: make([]domain.AccountImbalance, 0),
		CheckedAt:         time.Now().UTC(),
	}

	for offset := 0; ; offset += accountPageSize {
		accounts, err := uc.accountRepo.List(ctx, tx, accountPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}

		for _, acc := range accounts {
			result.AccountsChecked++
			calculated := decimal.Zero
			if s, ok := sums[acc.ID]; ok {
				calculated = s.Balance()
			}
			stored := acc.Total()
			if domain.WithinTolerance(stored, calculated) {
				continue
			}
			result.AccountImbalances = append(result.AccountImbalances, domain.AccountImbalance{
				AccountID:         acc.ID,
				UserID:            acc.UserID,
				Currency:          acc.Currency,
				StoredBalance:     stored,
				CalculatedBalance: calculated,
				Imbalance:         stored.Sub(calculated),
			})
		}

		if len(accounts) < accountPageSize {
			break
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	result.IsValid = result.Imbalance.Abs().LessThanOrEqual(domain.Tolerance) && len(result.AccountImbalances) == 0

	if uc.metrics != nil {
		label := "valid"
		if !result.IsValid {
			label = "invalid"
		}
		uc.metrics.IntegrityChecks.WithLabelValues(label).Inc()
		uc.metrics.AccountImbalances.Set(float64(len(result.AccountImbalances)))
		uc.metrics.IntegrityDuration.Observe(time.Since(start).Seconds())
	}

	if !result.IsValid {
		uc.logger.Warn().
			Str("imbalance", result.Imbalance.String()).
			Int("account_imbalances", len(result.AccountImbalances)).
			Msg("ledger integrity check failed")
	} else {
		uc.logger.Info().Int("accounts", result.AccountsChecked).Msg("ledger integrity verified")
	}

	return result, nil
}
