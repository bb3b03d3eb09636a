package usecase

import (
	"errors"
	"time"

	"github.com/iho/gameledger/internal/domain"
)

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultHouseUserID owns the counterparty account of every currency.
	DefaultHouseUserID = "house"

	// DefaultCloseLockTTL bounds how long a per-date lock survives a crashed holder.
	DefaultCloseLockTTL = 30 * time.Minute

	// DefaultCloseStaleAfter lets a new run take over an abandoned IN_PROGRESS close.
	DefaultCloseStaleAfter = time.Hour

	accountPageSize = 1000

	defaultCloseListLimit = 30
	maxCloseListLimit     = 366

	defaultUnreconciledLimit = 50
	maxUnreconciledLimit     = 1000
)

// DateLockKey is the lock shared by daily close and reconciliation for one date.
func DateLockKey(date string) string {
	return "close:" + date
}

// errorLabel maps an error onto a low-cardinality metric label.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInvalidTransactionType):
		return "invalid_type"
	case errors.Is(err, domain.ErrInvalidCurrency):
		return "invalid_currency"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrInsufficientLockedBalance):
		return "insufficient_locked_balance"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrLedgerInconsistency):
		return "ledger_inconsistency"
	case errors.Is(err, domain.ErrSerializationConflict):
		return "serialization_conflict"
	case errors.Is(err, domain.ErrTransactionTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
