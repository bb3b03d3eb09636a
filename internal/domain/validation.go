package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxMetadataSize   = 10240           // 10KB
	MaxTransactionAmt = "1000000000000" // 1 trillion
	MaxDescriptionLen = 512
	AmountScale       = 8 // NUMERIC(30,8)
)

// Tolerance absorbs decimal rounding when comparing balances.
var Tolerance = decimal.New(1, -8)

// WithinTolerance reports whether a and b differ by at most Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Currencies is the set of supported currency codes.
type Currencies map[string]bool

// NewCurrencies builds the set from codes, upper-casing each.
func NewCurrencies(codes []string) Currencies {
	codes = NormalizeCurrencies(codes)
	c := make(Currencies, len(codes))
	for _, code := range codes {
		c[code] = true
	}
	return c
}

// NormalizeCurrencies upper-cases and trims codes, dropping blanks and
// repeats while keeping the first-seen order.
func NormalizeCurrencies(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		code = NormalizeCurrency(code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// Validate checks that currency is supported.
func (c Currencies) Validate(currency string) error {
	if !c[strings.ToUpper(strings.TrimSpace(currency))] {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	return nil
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ValidateAmount checks a transaction magnitude.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}

	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, AmountScale)
	}

	maxAmount := decimal.RequireFromString(MaxTransactionAmt)
	if amount.Abs().GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrInvalidAmount, MaxTransactionAmt)
	}

	return nil
}

// ValidateMetadata validates metadata size
func ValidateMetadata(metadata map[string]any) error {
	if metadata == nil {
		return nil
	}

	// Estimate size (rough approximation)
	size := 0
	for k, v := range metadata {
		size += len(k)
		size += len(fmt.Sprintf("%v", v))
	}

	if size > MaxMetadataSize {
		return fmt.Errorf("%w: metadata size %d bytes exceeds limit of %d bytes", ErrInvalidInput, size, MaxMetadataSize)
	}

	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset, defaultSize, maxSize int) (int, int) {
	if limit <= 0 {
		limit = defaultSize
	}

	if limit > maxSize {
		limit = maxSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
