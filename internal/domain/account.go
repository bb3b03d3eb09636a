package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds one user's balance in one currency.
// Available and Locked are a cached projection of the ledger entry log.
type Account struct {
	ID            string
	UserID        string
	Currency      string
	Available     decimal.Decimal
	Locked        decimal.Decimal
	Version       int64
	AllowNegative bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewAccount builds a zero-balance account for (userID, currency).
func NewAccount(id, userID, currency string, allowNegative bool, now time.Time) *Account {
	return &Account{
		ID:            id,
		UserID:        userID,
		Currency:      currency,
		Available:     decimal.Zero,
		Locked:        decimal.Zero,
		AllowNegative: allowNegative,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Key returns the natural identity of the account.
func (a *Account) Key() string {
	return AccountKey(a.UserID, a.Currency)
}

// AccountKey builds the natural identity used for lock ordering and lookups.
func AccountKey(userID, currency string) string {
	return userID + "/" + currency
}

// Total is the amount the entry log must account for.
func (a *Account) Total() decimal.Decimal {
	return a.Available.Add(a.Locked)
}

// ValidateDebit checks if available funds cover amount.
func (a *Account) ValidateDebit(amount decimal.Decimal) error {
	if a.AllowNegative {
		return nil
	}
	if a.Available.LessThan(amount) {
		return ErrInsufficientBalance
	}
	return nil
}

// ValidateLock checks if amount can move from available to locked.
func (a *Account) ValidateLock(amount decimal.Decimal) error {
	if a.Available.LessThan(amount) {
		return ErrInsufficientBalance
	}
	return nil
}

// ValidateUnlock checks if amount can move from locked back to available.
func (a *Account) ValidateUnlock(amount decimal.Decimal) error {
	if a.Locked.LessThan(amount) {
		return ErrInsufficientLockedBalance
	}
	return nil
}

// ApplyDebit returns available after a debit.
func (a *Account) ApplyDebit(amount decimal.Decimal) decimal.Decimal {
	return a.Available.Sub(amount)
}

// ApplyCredit returns available after a credit.
func (a *Account) ApplyCredit(amount decimal.Decimal) decimal.Decimal {
	return a.Available.Add(amount)
}
