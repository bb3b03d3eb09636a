// Package worker drives daily close and reconciliation jobs off the job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/infrastructure/logger"
	"github.com/iho/gameledger/internal/infrastructure/metrics"
	"github.com/iho/gameledger/internal/usecase"
)

// Queue is the job queue the worker consumes.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts domain.JobOptions) (*domain.Job, error)
	// Dequeue claims the next ready job, or returns nil when none is ready.
	Dequeue(ctx context.Context) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	UpdateProgress(ctx context.Context, id string, percent int) error
	// Heartbeat renews the claim on an active job.
	Heartbeat(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result any) error
	// Fail records cause and reports whether a retry was scheduled.
	Fail(ctx context.Context, id string, cause error, permanent bool) (bool, error)
}

// Handler executes one job and returns its result.
type Handler func(ctx context.Context, job *domain.Job, progress usecase.ProgressFunc) (any, error)

// Config for Worker.
type Config struct {
	Queue             Queue
	Logger            zerolog.Logger
	Metrics           *metrics.Metrics
	PollInterval      time.Duration // Idle wait between empty dequeues
	JobTimeout        time.Duration // Upper bound on one handler run
	HeartbeatInterval time.Duration // Must stay well below the queue lease
	Concurrency       int
}

// Worker polls the queue and dispatches jobs to handlers by type.
type Worker struct {
	queue             Queue
	logger            zerolog.Logger
	metrics           *metrics.Metrics
	pollInterval      time.Duration
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	concurrency       int
	handlers          map[string]Handler
}

// New creates a new Worker.
func New(cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{
		queue:             cfg.Queue,
		logger:            cfg.Logger.With().Str("component", "worker").Logger(),
		metrics:           cfg.Metrics,
		pollInterval:      cfg.PollInterval,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		concurrency:       cfg.Concurrency,
		handlers:          make(map[string]Handler),
	}
}

// Handle registers h for jobType. It must be called before Start.
func (w *Worker) Handle(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// Start runs the poll loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().
		Int("concurrency", w.concurrency).
		Dur("poll_interval", w.pollInterval).
		Dur("job_timeout", w.jobTimeout).
		Msg("worker started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error { return w.loop(ctx) })
	}
	err := g.Wait()
	w.logger.Info().Msg("worker shutting down")
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("error processing job")
		}
		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessNext claims and runs one job. It reports whether a job was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return true, w.run(ctx, job)
}

func (w *Worker) run(ctx context.Context, job *domain.Job) error {
	ctx = context.WithValue(ctx, logger.JobIDKey, job.ID)
	log := logger.FromContext(ctx, w.logger).With().
		Str("job_type", job.Type).
		Int("attempt", job.Attempts).
		Logger()
	ctx = logger.WithContext(ctx, log)

	h, ok := w.handlers[job.Type]
	if !ok {
		return w.fail(ctx, log, job, fmt.Errorf("%w: no handler for job type %q", domain.ErrInvalidInput, job.Type))
	}

	log.Info().Msg("job started")
	began := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	stopHeartbeat := w.heartbeat(jobCtx, job.ID, log)
	result, err := h(jobCtx, job, w.progress(job.ID, log))
	stopHeartbeat()
	cancel()

	if w.metrics != nil {
		w.metrics.JobDuration.WithLabelValues(job.Type).Observe(time.Since(began).Seconds())
	}
	if err != nil {
		return w.fail(ctx, log, job, err)
	}

	if err := w.queue.Complete(context.WithoutCancel(ctx), job.ID, result); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	w.observe(job.Type, "completed")
	log.Info().Dur("duration", time.Since(began)).Msg("job completed")
	return nil
}

func (w *Worker) fail(ctx context.Context, log zerolog.Logger, job *domain.Job, cause error) error {
	permanent := IsPermanent(cause)
	retry, err := w.queue.Fail(context.WithoutCancel(ctx), job.ID, cause, permanent)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}

	if retry {
		w.observe(job.Type, "retry")
		log.Warn().Err(cause).Int("max_attempts", job.MaxAttempts).Msg("job failed, retry scheduled")
		return nil
	}
	w.observe(job.Type, "failed")
	log.Error().Err(cause).Bool("permanent", permanent).Msg("job failed")
	return nil
}

// heartbeat renews the job's lease until the returned stop func is called.
func (w *Worker) heartbeat(ctx context.Context, jobID string, log zerolog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.queue.Heartbeat(ctx, jobID); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Msg("failed to renew job lease")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (w *Worker) progress(jobID string, log zerolog.Logger) usecase.ProgressFunc {
	return func(ctx context.Context, percent int) {
		if err := w.queue.UpdateProgress(ctx, jobID, percent); err != nil {
			log.Warn().Err(err).Int("progress", percent).Msg("failed to record job progress")
		}
	}
}

func (w *Worker) observe(jobType, result string) {
	if w.metrics != nil {
		w.metrics.JobsProcessed.WithLabelValues(jobType, result).Inc()
	}
}

// IsPermanent reports whether retrying a job that failed with err cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, domain.ErrAlreadyCompleted) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrLedgerInconsistency)
}
