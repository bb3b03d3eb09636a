package domain

import (
	"encoding/json"
	"time"
)

// Job types
const (
	JobTypeDailyClose     = "daily_close"
	JobTypeReconciliation = "reconciliation"
)

// JobState is the queue-side lifecycle of a job.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateDelayed   JobState = "delayed"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// JobOptions controls how a job is scheduled. Lower Priority runs first.
type JobOptions struct {
	JobID     string
	Priority  int
	Attempts  int
	Backoff   time.Duration
	Delay     time.Duration
	Retention time.Duration
}

// Job is a unit of asynchronous work.
type Job struct {
	ID           string
	Type         string
	Payload      json.RawMessage
	State        JobState
	Priority     int
	Progress     int
	Attempts     int
	MaxAttempts  int
	Backoff      time.Duration
	Retention    time.Duration
	FailedReason string
	Result       json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// DailyCloseJobPayload is the payload of a daily_close job.
type DailyCloseJobPayload struct {
	Date                  string `json:"date"`
	Force                 bool   `json:"force,omitempty"`
	IncludeReconciliation bool   `json:"include_reconciliation,omitempty"`
}

// ReconciliationJobPayload is the payload of a reconciliation job.
type ReconciliationJobPayload struct {
	Date  string `json:"date"`
	Force bool   `json:"force,omitempty"`
}
