package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCurrencies_Validate(t *testing.T) {
	t.Parallel()

	c := NewCurrencies([]string{"usd", " EUR ", ""})

	if err := c.Validate("usd"); err != nil {
		t.Fatalf("expected uppercase conversion to succeed, got %v", err)
	}
	if err := c.Validate("EUR"); err != nil {
		t.Fatalf("expected trimmed code to be accepted, got %v", err)
	}
	if err := c.Validate("XYZ"); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
	if len(c) != 2 {
		t.Fatalf("expected empty code to be dropped, got %d entries", len(c))
	}
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	if err := ValidateAmount(decimal.NewFromFloat(100.25)); err != nil {
		t.Fatalf("expected valid amount, got %v", err)
	}

	if err := ValidateAmount(decimal.NewFromFloat(-5)); err != nil {
		t.Fatalf("expected sign to be ignored, got %v", err)
	}

	if err := ValidateAmount(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}

	huge := decimal.RequireFromString(MaxTransactionAmt).Add(decimal.NewFromInt(1))
	if err := ValidateAmount(huge); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for oversized amount, got %v", err)
	}

	if err := ValidateAmount(decimal.RequireFromString("0.00000001")); err != nil {
		t.Fatalf("expected eight decimal places to be allowed, got %v", err)
	}

	if err := ValidateAmount(decimal.RequireFromString("1.500000000000")); err != nil {
		t.Fatalf("expected trailing zeros beyond the scale to be allowed, got %v", err)
	}

	if err := ValidateAmount(decimal.RequireFromString("0.000000001")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nine decimal places, got %v", err)
	}
}

func TestValidateMetadata(t *testing.T) {
	t.Parallel()

	if err := ValidateMetadata(nil); err != nil {
		t.Fatalf("expected nil metadata to be allowed, got %v", err)
	}

	valid := map[string]any{"key": "value", "count": 10}
	if err := ValidateMetadata(valid); err != nil {
		t.Fatalf("expected valid metadata, got %v", err)
	}

	oversized := map[string]any{
		"payload": strings.Repeat("x", MaxMetadataSize),
	}
	if err := ValidateMetadata(oversized); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		limit, offset int
		wantL, wantO  int
	}{
		{0, 0, 50, 0},
		{-1, -5, 50, 0},
		{10, 3, 10, 3},
		{5000, 0, 1000, 0},
	}
	for _, tt := range tests {
		l, o := ValidatePagination(tt.limit, tt.offset, 50, 1000)
		if l != tt.wantL || o != tt.wantO {
			t.Errorf("ValidatePagination(%d, %d) = %d, %d; want %d, %d", tt.limit, tt.offset, l, o, tt.wantL, tt.wantO)
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	t.Parallel()

	a := decimal.RequireFromString("100.000000005")
	b := decimal.RequireFromString("100")
	if !WithinTolerance(a, b) {
		t.Fatal("expected sub-tolerance difference to be equal")
	}
	if WithinTolerance(decimal.RequireFromString("100.00000002"), b) {
		t.Fatal("expected difference above tolerance to be unequal")
	}
}

func TestBalanceMismatchError(t *testing.T) {
	t.Parallel()

	var err error = &BalanceMismatchError{
		AccountID:  "acc-1",
		Stored:     decimal.NewFromInt(10),
		Calculated: decimal.NewFromInt(9),
		Difference: decimal.NewFromInt(1),
	}
	if !errors.Is(err, ErrBalanceMismatch) {
		t.Fatal("expected errors.Is to match ErrBalanceMismatch")
	}
	var bm *BalanceMismatchError
	if !errors.As(err, &bm) || bm.AccountID != "acc-1" {
		t.Fatalf("expected errors.As to extract the mismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "difference=1") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestNormalizeCurrencies(t *testing.T) {
	t.Parallel()

	got := NormalizeCurrencies([]string{" usd", "EUR", "", "Usd", "gbp "})
	want := []string{"USD", "EUR", "GBP"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeCurrencies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("NormalizeCurrencies = %v, want %v", got, want)
		}
	}
}
