package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAccount_ValidateDebit(t *testing.T) {
	tests := []struct {
		name        string
		available   decimal.Decimal
		debitAmount decimal.Decimal
		allowNeg    bool
		expectError bool
	}{
		{
			name:        "allow negative - debit more than balance",
			available:   decimal.NewFromInt(100),
			allowNeg:    true,
			debitAmount: decimal.NewFromInt(150),
			expectError: false,
		},
		{
			name:        "disallow negative - debit more than balance",
			available:   decimal.NewFromInt(100),
			allowNeg:    false,
			debitAmount: decimal.NewFromInt(150),
			expectError: true,
		},
		{
			name:        "disallow negative - debit exact balance",
			available:   decimal.NewFromInt(100),
			allowNeg:    false,
			debitAmount: decimal.NewFromInt(100),
			expectError: false,
		},
		{
			name:        "disallow negative - debit less than balance",
			available:   decimal.NewFromInt(100),
			allowNeg:    false,
			debitAmount: decimal.NewFromInt(50),
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &Account{
				Available:     tt.available,
				AllowNegative: tt.allowNeg,
			}

			err := acc.ValidateDebit(tt.debitAmount)

			if tt.expectError && !errors.Is(err, ErrInsufficientBalance) {
				t.Errorf("expected ErrInsufficientBalance, got %v", err)
			}

			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAccount_ValidateLockUnlock(t *testing.T) {
	acc := &Account{Available: decimal.NewFromInt(100), Locked: decimal.NewFromInt(20)}

	if err := acc.ValidateLock(decimal.NewFromInt(100)); err != nil {
		t.Fatalf("expected lock of full available to pass, got %v", err)
	}
	if err := acc.ValidateLock(decimal.NewFromInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := acc.ValidateUnlock(decimal.NewFromInt(20)); err != nil {
		t.Fatalf("expected unlock of full locked to pass, got %v", err)
	}
	if err := acc.ValidateUnlock(decimal.NewFromInt(21)); !errors.Is(err, ErrInsufficientLockedBalance) {
		t.Fatalf("expected ErrInsufficientLockedBalance, got %v", err)
	}
}

func TestAccount_ApplyDebit(t *testing.T) {
	acc := &Account{Available: decimal.NewFromInt(100)}
	newBalance := acc.ApplyDebit(decimal.NewFromInt(30))

	expected := decimal.NewFromInt(70)
	if !newBalance.Equal(expected) {
		t.Errorf("expected balance %s, got %s", expected, newBalance)
	}
}

func TestAccount_ApplyCredit(t *testing.T) {
	acc := &Account{Available: decimal.NewFromInt(100)}
	newBalance := acc.ApplyCredit(decimal.NewFromInt(30))

	expected := decimal.NewFromInt(130)
	if !newBalance.Equal(expected) {
		t.Errorf("expected balance %s, got %s", expected, newBalance)
	}
}

func TestNewAccount(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	acc := NewAccount("acc-1", "user-1", "USD", false, now)

	if acc.Key() != "user-1/USD" {
		t.Errorf("unexpected key %q", acc.Key())
	}
	if !acc.Total().IsZero() {
		t.Errorf("expected zero total, got %s", acc.Total())
	}
	if !acc.CreatedAt.Equal(now) || !acc.UpdatedAt.Equal(now) {
		t.Errorf("timestamps not set")
	}
}
