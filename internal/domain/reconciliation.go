package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationEntryType is the payment stream an entry belongs to.
type ReconciliationEntryType string

const (
	ReconciliationEntryDeposit    ReconciliationEntryType = "DEPOSIT"
	ReconciliationEntryWithdrawal ReconciliationEntryType = "WITHDRAWAL"
)

// ReconciliationStatus is the lifecycle state of a discrepancy.
type ReconciliationStatus string

const (
	ReconciliationStatusUnreconciled ReconciliationStatus = "UNRECONCILED"
	ReconciliationStatusVariance     ReconciliationStatus = "VARIANCE"
	ReconciliationStatusResolved     ReconciliationStatus = "RESOLVED"
)

// IsOpen reports whether the status still needs operator attention.
func (s ReconciliationStatus) IsOpen() bool {
	return s == ReconciliationStatusUnreconciled || s == ReconciliationStatusVariance
}

// ReconciliationEntry is a discrepancy between a payment confirmation and the ledger.
type ReconciliationEntry struct {
	ID             string
	EntryType      ReconciliationEntryType
	ReferenceID    string
	ExpectedAmount decimal.Decimal
	ActualAmount   decimal.Decimal
	Variance       decimal.Decimal
	Currency       string
	Status         ReconciliationStatus
	Notes          string
	ResolvedBy     *string
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Resolve closes an open entry and appends the resolution to the notes.
func (e *ReconciliationEntry) Resolve(resolvedBy, resolution string, now time.Time) error {
	if !e.Status.IsOpen() {
		return ErrAlreadyResolved
	}
	resolvedBy = strings.TrimSpace(resolvedBy)
	if resolvedBy == "" {
		return ErrInvalidInput
	}

	e.Status = ReconciliationStatusResolved
	e.ResolvedBy = &resolvedBy
	e.ResolvedAt = &now
	e.UpdatedAt = now
	if resolution = strings.TrimSpace(resolution); resolution != "" {
		if e.Notes == "" {
			e.Notes = resolution
		} else {
			e.Notes += "\n" + resolution
		}
	}
	return nil
}

// Refresh rewrites an open entry with the shape seen on the latest run.
// It reports whether anything changed.
func (e *ReconciliationEntry) Refresh(expected, actual, variance decimal.Decimal, status ReconciliationStatus, notes string, now time.Time) bool {
	if !e.Status.IsOpen() {
		return false
	}
	if e.Status == status && e.ExpectedAmount.Equal(expected) && e.ActualAmount.Equal(actual) && e.Variance.Equal(variance) {
		return false
	}
	e.ExpectedAmount = expected
	e.ActualAmount = actual
	e.Variance = variance
	e.Status = status
	e.Notes = notes
	e.UpdatedAt = now
	return true
}

// ReconciliationResult summarises one run for a date.
type ReconciliationResult struct {
	Date                 string                `json:"date"`
	ProcessedCount       int                   `json:"processed_count"`
	ReconciledCount      int                   `json:"reconciled_count"`
	UnreconciledCount    int                   `json:"unreconciled_count"`
	PendingCount         int                   `json:"pending_count"`
	DiscrepanciesCreated int                   `json:"discrepancies_created"`
	Errors               []ReconciliationError `json:"errors,omitempty"`
}

// ReconciliationError is a per-item failure that did not abort the batch.
type ReconciliationError struct {
	EntryType   ReconciliationEntryType `json:"entry_type"`
	ReferenceID string                  `json:"reference_id"`
	Message     string                  `json:"message"`
}
