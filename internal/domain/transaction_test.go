package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTransactionType_Direction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Direction
	}{
		{"DEPOSIT", DirectionCredit},
		{"win", DirectionCredit},
		{"Bonus", DirectionCredit},
		{"WITHDRAWAL", DirectionDebit},
		{"BET", DirectionDebit},
		{"BONUS_WAGERING", DirectionDebit},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			typ, err := ParseTransactionType(tt.in)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			d, err := typ.Direction()
			if err != nil {
				t.Fatalf("direction: %v", err)
			}
			if d != tt.want {
				t.Fatalf("got %s, want %s", d, tt.want)
			}
		})
	}
}

func TestParseTransactionType_Unknown(t *testing.T) {
	t.Parallel()

	if _, err := ParseTransactionType("REFUND"); !errors.Is(err, ErrInvalidTransactionType) {
		t.Fatalf("expected ErrInvalidTransactionType, got %v", err)
	}
	if _, err := TransactionType("REFUND").Direction(); !errors.Is(err, ErrInvalidTransactionType) {
		t.Fatalf("expected ErrInvalidTransactionType, got %v", err)
	}
}

func TestDirection_Signed(t *testing.T) {
	t.Parallel()

	amt := decimal.NewFromInt(-25)
	if got := DirectionCredit.Signed(amt); !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("credit: got %s", got)
	}
	if got := DirectionDebit.Signed(amt.Neg()); !got.Equal(decimal.NewFromInt(-25)) {
		t.Fatalf("debit: got %s", got)
	}
}

func TestLedgerEntry_Validate(t *testing.T) {
	t.Parallel()

	e := &LedgerEntry{CreditAccountID: "a", DebitAccountID: "a", Amount: decimal.NewFromInt(1)}
	if err := e.Validate(); !errors.Is(err, ErrSameAccount) {
		t.Fatalf("expected ErrSameAccount, got %v", err)
	}

	e.DebitAccountID = "b"
	e.Amount = decimal.Zero
	if err := e.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	e.Amount = decimal.NewFromInt(5)
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
