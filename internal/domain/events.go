package domain

import "time"

// Event types
const (
	EventTypeTransactionExecuted     = "transaction.executed"
	EventTypeBalanceLocked           = "balance.locked"
	EventTypeBalanceUnlocked         = "balance.unlocked"
	EventTypeAccountCreated          = "account.created"
	EventTypeDailyCloseCompleted     = "daily_close.completed"
	EventTypeDailyCloseFailed        = "daily_close.failed"
	EventTypeDiscrepancyDetected     = "reconciliation.discrepancy_detected"
	EventTypeReconciliationResolved  = "reconciliation.resolved"
	EventTypeReconciliationCompleted = "reconciliation.completed"
)

// Aggregate types
const (
	AggregateTypeTransaction    = "transaction"
	AggregateTypeAccount        = "account"
	AggregateTypeDailyClose     = "daily_close"
	AggregateTypeReconciliation = "reconciliation"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// TransactionExecutedEvent payload
type TransactionExecutedEvent struct {
	TransactionID   string `json:"transaction_id"`
	EntryID         string `json:"entry_id"`
	UserID          string `json:"user_id"`
	Type            string `json:"type"`
	Currency        string `json:"currency"`
	Amount          string `json:"amount"`
	BalanceBefore   string `json:"balance_before"`
	BalanceAfter    string `json:"balance_after"`
	CreditAccountID string `json:"credit_account_id"`
	DebitAccountID  string `json:"debit_account_id"`
	EventAt         string `json:"event_at"`
}

// BalanceLockEvent payload for lock and unlock.
type BalanceLockEvent struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

// AccountCreatedEvent payload
type AccountCreatedEvent struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	Currency  string `json:"currency"`
}

// DailyCloseEvent payload
type DailyCloseEvent struct {
	Date              string `json:"date"`
	Status            string `json:"status"`
	LedgerIntegrity   bool   `json:"ledger_integrity"`
	UnreconciledCount int64  `json:"unreconciled_count"`
	ExportPath        string `json:"export_path,omitempty"`
	Error             string `json:"error,omitempty"`
}

// DiscrepancyDetectedEvent payload
type DiscrepancyDetectedEvent struct {
	EntryID     string `json:"entry_id"`
	EntryType   string `json:"entry_type"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Variance    string `json:"variance"`
	Currency    string `json:"currency"`
}

// ReconciliationResolvedEvent payload
type ReconciliationResolvedEvent struct {
	EntryID    string `json:"entry_id"`
	ResolvedBy string `json:"resolved_by"`
}
