package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of monetary event recorded against a user.
type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal    TransactionType = "WITHDRAWAL"
	TransactionTypeBet           TransactionType = "BET"
	TransactionTypeWin           TransactionType = "WIN"
	TransactionTypeBonus         TransactionType = "BONUS"
	TransactionTypeBonusWagering TransactionType = "BONUS_WAGERING"
)

// TransactionTypes lists every known type in reporting order.
var TransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdrawal,
	TransactionTypeBet,
	TransactionTypeWin,
	TransactionTypeBonus,
	TransactionTypeBonusWagering,
}

// Direction tells whether a transaction adds to or takes from the user.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

var transactionDirections = map[TransactionType]Direction{
	TransactionTypeDeposit:       DirectionCredit,
	TransactionTypeWin:           DirectionCredit,
	TransactionTypeBonus:         DirectionCredit,
	TransactionTypeWithdrawal:    DirectionDebit,
	TransactionTypeBet:           DirectionDebit,
	TransactionTypeBonusWagering: DirectionDebit,
}

// ParseTransactionType parses a case-insensitive type name.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := transactionDirections[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, s)
	}
	return t, nil
}

// Direction classifies the type as credit or debit.
func (t TransactionType) Direction() (Direction, error) {
	d, ok := transactionDirections[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, string(t))
	}
	return d, nil
}

// Signed applies the direction's sign to a magnitude.
func (d Direction) Signed(magnitude decimal.Decimal) decimal.Decimal {
	if d == DirectionDebit {
		return magnitude.Abs().Neg()
	}
	return magnitude.Abs()
}

// Transaction is an immutable signed monetary event for one user.
type Transaction struct {
	ID                string
	UserID            string
	Type              TransactionType
	Currency          string
	Amount            decimal.Decimal
	BalanceBefore     decimal.Decimal
	BalanceAfter      decimal.Decimal
	ExternalReference *string
	Description       string
	Metadata          map[string]any
	CreatedAt         time.Time
}

// Magnitude returns the unsigned amount.
func (t *Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}
