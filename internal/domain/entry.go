package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry links one transaction to the account credited and the account debited.
// A single row carries both sides of the movement.
type LedgerEntry struct {
	ID              string
	TransactionID   string
	CreditAccountID string
	DebitAccountID  string
	Amount          decimal.Decimal
	Currency        string
	CreatedAt       time.Time
}

// Validate checks the double-entry invariants of the row.
func (e *LedgerEntry) Validate() error {
	if e.CreditAccountID == e.DebitAccountID {
		return ErrSameAccount
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// EntrySums aggregates entry amounts for one account.
type EntrySums struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
}

// Balance is credits minus debits.
func (s EntrySums) Balance() decimal.Decimal {
	return s.Credits.Sub(s.Debits)
}
