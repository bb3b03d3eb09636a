package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Input errors
	ErrInvalidAmount          = errors.New("amount must be non-zero")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidCurrency        = errors.New("unsupported currency")
	ErrInvalidInput           = errors.New("invalid input")
	ErrSameAccount            = errors.New("credit and debit account must differ")

	// Account errors
	ErrAccountNotFound           = errors.New("account not found")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientLockedBalance = errors.New("insufficient locked balance")

	// Ledger errors
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrLedgerInconsistency   = errors.New("ledger inconsistency")
	ErrBalanceMismatch       = errors.New("balance mismatch")
	ErrSerializationConflict = errors.New("serialization conflict")
	ErrTransactionTimeout    = errors.New("transaction timed out")

	// Daily close errors
	ErrAlreadyCompleted   = errors.New("daily close already completed")
	ErrCloseInProgress    = errors.New("daily close already in progress")
	ErrDailyCloseNotFound = errors.New("daily close not found")

	// Reconciliation errors
	ErrReconciliationEntryNotFound = errors.New("reconciliation entry not found")
	ErrAlreadyResolved             = errors.New("reconciliation entry already resolved")
	ErrConfirmationNotFound        = errors.New("payment confirmation not found")

	// Infrastructure errors
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrJobNotFound     = errors.New("job not found")
)

// BalanceMismatchError reports an account whose stored balance disagrees with its entries.
type BalanceMismatchError struct {
	AccountID  string
	Stored     decimal.Decimal
	Calculated decimal.Decimal
	Difference decimal.Decimal
}

func (e *BalanceMismatchError) Error() string {
	return fmt.Sprintf("balance mismatch on account %s: stored=%s calculated=%s difference=%s",
		e.AccountID, e.Stored, e.Calculated, e.Difference)
}

// Is lets errors.Is(err, ErrBalanceMismatch) match.
func (e *BalanceMismatchError) Is(target error) bool {
	return target == ErrBalanceMismatch
}
