// Package worker runs background jobs stored in the jobs table.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/pinreport/internal/metrics"
	"github.com/DukeRupert/pinreport/internal/repository"
)

// Worker polls the jobs table and dispatches jobs to registered handlers.
type Worker struct {
	db       *sql.DB
	queries  *repository.Queries
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

func New(db *sql.DB, queries *repository.Queries, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}

	return &Worker{
		db:       db,
		queries:  queries,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a handler. Call before Start.
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("overwriting job handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
}

// Start requeues stale jobs and launches the polling goroutines.
func (w *Worker) Start(ctx context.Context) {
	if err := w.recoverStaleJobs(ctx); err != nil {
		w.logger.Error("failed to recover stale jobs", "error", err)
	}

	for i := range w.config.Concurrency {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}

	w.logger.Info("worker started", "concurrency", w.config.Concurrency)
}

// Stop signals the pollers and waits up to ShutdownTimeout for them.
func (w *Worker) Stop() {
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timed out, jobs may still be running")
	}
}

func (w *Worker) recoverStaleJobs(ctx context.Context) error {
	count, err := w.queries.RecoverStaleJobs(ctx, w.config.StaleJobThreshold.Seconds())
	if err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}
	if count > 0 {
		w.logger.Warn("recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}
	return nil
}

func (w *Worker) run(ctx context.Context, id int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", id)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processNextJob(ctx, logger); err != nil && !errors.Is(err, sql.ErrNoRows) {
				logger.Error("failed to process job", "error", err)
			}
		}
	}
}

// processNextJob claims and runs one job. It returns sql.ErrNoRows when the
// queue is empty.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	job, err := w.claim(ctx)
	if err != nil {
		return err
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts+1)
	logger.Info("processing job")

	start := time.Now()
	done := metrics.TrackJob(job.JobType)
	if err := w.execute(ctx, job); err != nil {
		done(w.markFailed(ctx, job, err, logger))
		return fmt.Errorf("execute job: %w", err)
	}
	done(metrics.JobOutcomeCompleted)

	if err := w.queries.UpdateJobCompleted(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	logger.Info("job completed", "duration", time.Since(start))
	return nil
}

// claim dequeues a job and marks it running in one transaction.
func (w *Worker) claim(ctx context.Context) (repository.Job, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Job{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := w.queries.WithTx(tx)

	job, err := qtx.DequeueJob(ctx)
	if err != nil {
		return repository.Job{}, err
	}
	if err := qtx.UpdateJobStarted(ctx, job.ID); err != nil {
		return repository.Job{}, fmt.Errorf("mark job started: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return repository.Job{}, fmt.Errorf("commit dequeue: %w", err)
	}
	return job, nil
}

func (w *Worker) execute(ctx context.Context, job repository.Job) error {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return Permanentf("no handler registered for job type %q", job.JobType)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job.Payload)
}

// markFailed records the error and returns the job's outcome. Permanent
// errors and jobs out of attempts end as failed; the rest are rescheduled
// with backoff.
func (w *Worker) markFailed(ctx context.Context, job repository.Job, jobErr error, logger *slog.Logger) string {
	permanent := IsPermanent(jobErr)
	outcome := metrics.JobOutcomeRetrying
	switch {
	case permanent:
		outcome = metrics.JobOutcomeFailed
		logger.Warn("job failed permanently", "error", jobErr)
	case job.Attempts+1 >= job.MaxAttempts:
		outcome = metrics.JobOutcomeFailed
		logger.Error("job failed, no attempts remain", "error", jobErr, "max_attempts", job.MaxAttempts)
	default:
		logger.Warn("job failed, will retry", "error", jobErr)
	}

	err := w.queries.UpdateJobFailed(ctx, repository.UpdateJobFailedParams{
		Permanent:    permanent,
		ErrorMessage: sql.NullString{String: jobErr.Error(), Valid: true},
		ID:           job.ID,
	})
	if err != nil {
		logger.Error("failed to record job failure", "error", err)
	}
	return outcome
}
