package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/infrastructure/metrics"
)

// SchedulerConfig for Scheduler.
type SchedulerConfig struct {
	Queue    Queue
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Location *time.Location
	Hour     int
	Minute   int
	// IncludeReconciliation is passed through to every scheduled close.
	IncludeReconciliation bool
}

// Scheduler enqueues the previous day's close once a day at a fixed local time.
type Scheduler struct {
	queue                 Queue
	logger                zerolog.Logger
	metrics               *metrics.Metrics
	location              *time.Location
	hour                  int
	minute                int
	includeReconciliation bool
	now                   func() time.Time
	after                 func(time.Duration) <-chan time.Time
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		queue:                 cfg.Queue,
		logger:                cfg.Logger.With().Str("component", "scheduler").Logger(),
		metrics:               cfg.Metrics,
		location:              cfg.Location,
		hour:                  cfg.Hour,
		minute:                cfg.Minute,
		includeReconciliation: cfg.IncludeReconciliation,
		now:                   time.Now,
		after:                 time.After,
	}
}

// Start waits for each scheduled time and enqueues the close until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	for {
		next := s.NextRun(s.now())
		s.logger.Info().Time("next_run", next).Msg("daily close scheduled")

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler shutting down")
			return ctx.Err()
		case <-s.after(next.Sub(s.now())):
		}

		if _, err := s.Tick(ctx, next); err != nil {
			s.logger.Error().Err(err).Msg("failed to enqueue daily close")
		}
	}
}

// NextRun returns the first scheduled time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.location)
	}
	return next
}

// Tick enqueues the close of the calendar day before at.
func (s *Scheduler) Tick(ctx context.Context, at time.Time) (*domain.Job, error) {
	local := at.In(s.location)
	date := time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, s.location).Format(domain.DateLayout)

	job, err := EnqueueDailyClose(ctx, s.queue, s.metrics, domain.DailyCloseJobPayload{
		Date:                  date,
		IncludeReconciliation: s.includeReconciliation,
	}, domain.JobOptions{})
	if err != nil {
		return nil, fmt.Errorf("enqueue close for %s: %w", date, err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("close_date", date).
		Str("state", string(job.State)).
		Msg("daily close enqueued")
	return job, nil
}
