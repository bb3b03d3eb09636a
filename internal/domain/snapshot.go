package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot is one account's cumulative position at the end of a close date.
type BalanceSnapshot struct {
	CloseDate   string
	AccountID   string
	UserID      string
	Currency    string
	Deposits    decimal.Decimal
	Withdrawals decimal.Decimal
	Bets        decimal.Decimal
	Wins        decimal.Decimal
	Bonuses     decimal.Decimal
	Balance     decimal.Decimal
	CreatedAt   time.Time
}

// UserTypeTotals holds cumulative absolute amounts per transaction type for one user and currency.
type UserTypeTotals struct {
	UserID   string
	Currency string
	Totals   map[TransactionType]decimal.Decimal
}

// Amount returns the total for t, or zero.
func (u UserTypeTotals) Amount(t TransactionType) decimal.Decimal {
	if v, ok := u.Totals[t]; ok {
		return v
	}
	return decimal.Zero
}

// TypeTotal is an absolute sum of one transaction type in one currency.
type TypeTotal struct {
	Currency string
	Type     TransactionType
	Total    decimal.Decimal
}

// LedgerStats counts platform activity up to an instant.
type LedgerStats struct {
	TotalUsers        int64
	TotalTransactions int64
}
