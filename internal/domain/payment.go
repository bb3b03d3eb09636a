package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment read models are owned by the payment subsystems.
// The reconciliation matcher reads them and only updates confirmation status.

type DepositIntentStatus string

const (
	DepositIntentPending   DepositIntentStatus = "PENDING"
	DepositIntentConfirmed DepositIntentStatus = "CONFIRMED"
	DepositIntentFailed    DepositIntentStatus = "FAILED"
	DepositIntentExpired   DepositIntentStatus = "EXPIRED"
)

// DepositIntent is a user's request to deposit through a provider.
type DepositIntent struct {
	ID        string
	UserID    string
	Amount    decimal.Decimal
	Currency  string
	Status    DepositIntentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalApproved   WithdrawalStatus = "APPROVED"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalRejected   WithdrawalStatus = "REJECTED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

// WithdrawalRequest is a user's request to withdraw to a provider.
type WithdrawalRequest struct {
	ID        string
	UserID    string
	Amount    decimal.Decimal
	Currency  string
	Status    WithdrawalStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ConfirmationStatus string

const (
	ConfirmationPending      ConfirmationStatus = "PENDING"
	ConfirmationReconciled   ConfirmationStatus = "RECONCILED"
	ConfirmationUnreconciled ConfirmationStatus = "UNRECONCILED"
	ConfirmationVariance     ConfirmationStatus = "VARIANCE"
)

// PaymentConfirmation is the provider's statement that money moved for a reference.
type PaymentConfirmation struct {
	ID            string
	Kind          ReconciliationEntryType
	ReferenceID   string
	Amount        decimal.Decimal
	Currency      string
	Status        ConfirmationStatus
	TransactionID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
