package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-date format for closes.
const DateLayout = "2006-01-02"

// DailyCloseStatus is the lifecycle state of one close.
type DailyCloseStatus string

const (
	DailyCloseStatusInProgress DailyCloseStatus = "IN_PROGRESS"
	DailyCloseStatusCompleted  DailyCloseStatus = "COMPLETED"
	DailyCloseStatusFailed     DailyCloseStatus = "FAILED"
)

// CurrencySummary holds one currency's same-day totals.
type CurrencySummary struct {
	Currency    string          `json:"currency"`
	Deposits    decimal.Decimal `json:"deposits"`
	Withdrawals decimal.Decimal `json:"withdrawals"`
	Bets        decimal.Decimal `json:"bets"`
	Wins        decimal.Decimal `json:"wins"`
	Bonuses     decimal.Decimal `json:"bonuses"`
	GGR         decimal.Decimal `json:"ggr"`
	NGR         decimal.Decimal `json:"ngr"`
}

// NewCurrencySummary derives GGR and NGR from the raw totals.
func NewCurrencySummary(currency string, deposits, withdrawals, bets, wins, bonuses decimal.Decimal) CurrencySummary {
	ggr := bets.Sub(wins)
	return CurrencySummary{
		Currency:    currency,
		Deposits:    deposits,
		Withdrawals: withdrawals,
		Bets:        bets,
		Wins:        wins,
		Bonuses:     bonuses,
		GGR:         ggr,
		NGR:         ggr.Sub(bonuses),
	}
}

// CurrencyBalance aggregates end-of-day balances for one currency.
type CurrencyBalance struct {
	Currency     string          `json:"currency"`
	UserTotal    decimal.Decimal `json:"user_total"`
	HouseBalance decimal.Decimal `json:"house_balance"`
	AccountCount int             `json:"account_count"`
}

// CurrencyVariance compares one currency's NGR with the previous close.
// Percentage is nil when the previous NGR is not positive.
type CurrencyVariance struct {
	Currency    string           `json:"currency"`
	CurrentNGR  decimal.Decimal  `json:"current_ngr"`
	PreviousNGR decimal.Decimal  `json:"previous_ngr"`
	NGRVariance decimal.Decimal  `json:"ngr_variance"`
	Percentage  *decimal.Decimal `json:"percentage,omitempty"`
}

// Variance is the day-over-day comparison block.
type Variance struct {
	PreviousDate string             `json:"previous_date"`
	Currencies   []CurrencyVariance `json:"currencies"`
}

// ComputeVariance compares current summaries against previous ones.
// Currencies missing from previous compare against zero.
func ComputeVariance(previousDate string, current, previous []CurrencySummary) *Variance {
	prev := make(map[string]decimal.Decimal, len(previous))
	for _, s := range previous {
		prev[s.Currency] = s.NGR
	}

	v := &Variance{PreviousDate: previousDate, Currencies: make([]CurrencyVariance, 0, len(current))}
	for _, s := range current {
		p := prev[s.Currency]
		cv := CurrencyVariance{
			Currency:    s.Currency,
			CurrentNGR:  s.NGR,
			PreviousNGR: p,
			NGRVariance: s.NGR.Sub(p),
		}
		if p.IsPositive() {
			pct := cv.NGRVariance.Div(p).Mul(decimal.NewFromInt(100)).Round(2)
			cv.Percentage = &pct
		}
		v.Currencies = append(v.Currencies, cv)
	}
	return v
}

// ErrorDetails records the step at which a close failed.
type ErrorDetails struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// AccountImbalance is one account whose stored balance disagrees with its entries.
type AccountImbalance struct {
	AccountID         string          `json:"account_id"`
	UserID            string          `json:"user_id"`
	Currency          string          `json:"currency"`
	StoredBalance     decimal.Decimal `json:"stored_balance"`
	CalculatedBalance decimal.Decimal `json:"calculated_balance"`
	Imbalance         decimal.Decimal `json:"imbalance"`
}

// IntegrityResult is the outcome of a system-wide ledger audit.
type IntegrityResult struct {
	IsValid           bool               `json:"is_valid"`
	TotalCredits      decimal.Decimal    `json:"total_credits"`
	TotalDebits       decimal.Decimal    `json:"total_debits"`
	Imbalance         decimal.Decimal    `json:"imbalance"`
	AccountImbalances []AccountImbalance `json:"account_imbalances"`
	AccountsChecked   int                `json:"accounts_checked"`
	CheckedAt         time.Time          `json:"checked_at"`
}

// DailyClose is the durable record of one calendar date's close.
type DailyClose struct {
	Date                  string
	Status                DailyCloseStatus
	Summary               []CurrencySummary
	Balances              []CurrencyBalance
	TotalUsers            int64
	TotalTransactions     int64
	UnreconciledCount     int64
	LedgerIntegrity       bool
	Integrity             *IntegrityResult
	Variance              *Variance
	ExportPath            string
	ErrorDetails          *ErrorDetails
	Forced                bool
	IncludeReconciliation bool
	StartedAt             time.Time
	CompletedAt           *time.Time
	UpdatedAt             time.Time
}

// IsStale reports whether an IN_PROGRESS close has been running longer than staleAfter.
func (c *DailyClose) IsStale(now time.Time, staleAfter time.Duration) bool {
	return c.Status == DailyCloseStatusInProgress && now.Sub(c.StartedAt) > staleAfter
}

// DailyCloseReport is the exported view of a close.
type DailyCloseReport struct {
	Date        string
	GeneratedAt time.Time
	Summary     []CurrencySummary
	Integrity   *IntegrityResult
}

// DailyCloseFilter narrows ListDailyCloses. Empty From and To are unbounded.
type DailyCloseFilter struct {
	From  string
	To    string
	Limit int
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, s)
	}
	return t, nil
}

// DayWindow returns [start, end) of the calendar date in loc.
func DayWindow(date string, loc *time.Location) (time.Time, time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}

// PreviousDate returns the calendar date before date.
func PreviousDate(date string) (string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, -1).Format(DateLayout), nil
}
