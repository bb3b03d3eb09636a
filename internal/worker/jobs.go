package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/infrastructure/metrics"
	"github.com/iho/gameledger/internal/usecase"
)

// DailyCloser runs a daily close.
type DailyCloser interface {
	RunDailyClose(ctx context.Context, input usecase.RunDailyCloseInput) (*usecase.DailyCloseResult, error)
}

// Reconciler runs a locked reconciliation for one date.
type Reconciler interface {
	RunFullReconciliation(ctx context.Context, date string) (*domain.ReconciliationResult, error)
}

// DailyCloseJobID is the deduplication key for a date's daily close job.
func DailyCloseJobID(date string) string {
	return "daily-close:" + date
}

// ReconciliationJobID is the deduplication key for a date's reconciliation job.
func ReconciliationJobID(date string) string {
	return "reconciliation:" + date
}

// EnqueueDailyClose schedules a close for payload.Date, deduplicated per date.
// Forced runs get a unique ID so they are never swallowed by an earlier job.
func EnqueueDailyClose(ctx context.Context, q Queue, m *metrics.Metrics, payload domain.DailyCloseJobPayload, opts domain.JobOptions) (*domain.Job, error) {
	if _, err := domain.ParseDate(payload.Date); err != nil {
		return nil, err
	}
	switch {
	case opts.JobID != "":
	case payload.Force:
		opts.JobID = DailyCloseJobID(payload.Date) + ":force:" + ulid.Make().String()
	default:
		opts.JobID = DailyCloseJobID(payload.Date)
	}
	return enqueue(ctx, q, m, domain.JobTypeDailyClose, payload, opts)
}

// EnqueueReconciliation schedules a reconciliation for payload.Date, deduplicated
// per date unless forced.
func EnqueueReconciliation(ctx context.Context, q Queue, m *metrics.Metrics, payload domain.ReconciliationJobPayload, opts domain.JobOptions) (*domain.Job, error) {
	if _, err := domain.ParseDate(payload.Date); err != nil {
		return nil, err
	}
	switch {
	case opts.JobID != "":
	case payload.Force:
		opts.JobID = ReconciliationJobID(payload.Date) + ":force:" + ulid.Make().String()
	default:
		opts.JobID = ReconciliationJobID(payload.Date)
	}
	return enqueue(ctx, q, m, domain.JobTypeReconciliation, payload, opts)
}

func enqueue(ctx context.Context, q Queue, m *metrics.Metrics, jobType string, payload any, opts domain.JobOptions) (*domain.Job, error) {
	job, err := q.Enqueue(ctx, jobType, payload, opts)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.JobsEnqueued.WithLabelValues(jobType).Inc()
	}
	return job, nil
}

// DailyCloseResult is the result stored on a completed daily_close job.
type DailyCloseResult struct {
	Date              string                       `json:"date"`
	Status            domain.DailyCloseStatus      `json:"status"`
	LedgerIntegrity   bool                         `json:"ledger_integrity"`
	UnreconciledCount int64                        `json:"unreconciled_count"`
	ExportPath        string                       `json:"export_path,omitempty"`
	Reconciliation    *domain.ReconciliationResult `json:"reconciliation,omitempty"`
}

// DailyCloseHandler runs daily_close jobs on uc.
func DailyCloseHandler(uc DailyCloser) Handler {
	return func(ctx context.Context, job *domain.Job, progress usecase.ProgressFunc) (any, error) {
		var payload domain.DailyCloseJobPayload
		if err := decodePayload(job, &payload); err != nil {
			return nil, err
		}

		res, err := uc.RunDailyClose(ctx, usecase.RunDailyCloseInput{
			Date:                  payload.Date,
			Force:                 payload.Force,
			IncludeReconciliation: payload.IncludeReconciliation,
			Progress:              progress,
		})
		if err != nil {
			return nil, err
		}

		c := res.Close
		return DailyCloseResult{
			Date:              c.Date,
			Status:            c.Status,
			LedgerIntegrity:   c.LedgerIntegrity,
			UnreconciledCount: c.UnreconciledCount,
			ExportPath:        c.ExportPath,
			Reconciliation:    res.Reconciliation,
		}, nil
	}
}

// ReconciliationHandler runs reconciliation jobs on uc.
func ReconciliationHandler(uc Reconciler) Handler {
	return func(ctx context.Context, job *domain.Job, progress usecase.ProgressFunc) (any, error) {
		var payload domain.ReconciliationJobPayload
		if err := decodePayload(job, &payload); err != nil {
			return nil, err
		}

		res, err := uc.RunFullReconciliation(ctx, payload.Date)
		if err != nil {
			return nil, err
		}
		progress(ctx, 100)
		return res, nil
	}
}

func decodePayload(job *domain.Job, v any) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", domain.ErrInvalidInput, job.Type, err)
	}
	return nil
}
