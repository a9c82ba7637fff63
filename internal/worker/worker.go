// Package worker runs queued paper fetches.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
	"github.com/JakeFAU/paper-feeds/internal/metrics"
	"github.com/JakeFAU/paper-feeds/internal/pipeline"
)

const finalizeTimeout = 5 * time.Second

// Populator fetches and stores papers for one journal.
type Populator interface {
	PopulatePapers(ctx context.Context, issn string, limit int) (pipeline.FetchStats, error)
}

// Config controls Worker behavior.
type Config struct {
	// MaxRetries is how many extra attempts a failed fetch gets.
	MaxRetries int
	// RetryBackoffBase doubles after every failed attempt.
	RetryBackoffBase time.Duration
}

// Worker consumes fetch jobs and records each as a fetch run.
type Worker struct {
	queue     feeds.Queue
	populator Populator
	runs      feeds.FetchRunStore
	clock     feeds.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue feeds.Queue,
	populator Populator,
	runs feeds.FetchRunStore,
	clock feeds.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		populator: populator,
		runs:      runs,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming jobs until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, feeds.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued fetch", zap.String("run_id", job.RunID), zap.String("issn", job.ISSN))
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job feeds.FetchJob) {
	logger := w.logger.With(zap.String("run_id", job.RunID), zap.String("issn", job.ISSN))
	if w.populator == nil {
		logger.Error("no populator configured")
		return
	}

	if err := w.runs.StartRun(ctx, feeds.FetchRun{
		ID:        job.RunID,
		ISSN:      job.ISSN,
		Reason:    job.Reason,
		StartedAt: w.now(),
		Status:    feeds.RunRunning,
	}); err != nil {
		logger.Error("start fetch run failed", zap.Error(err))
		return
	}

	metrics.IncActiveWorkers()
	fetched, err := w.populate(ctx, job, logger)
	metrics.DecActiveWorkers()

	status := feeds.RunSuccess
	var errMsg *string
	if err != nil {
		status = feeds.RunError
		msg := err.Error()
		errMsg = &msg
		logger.Error("paper fetch failed", zap.Int("fetched", fetched), zap.Error(err))
	}

	// Record the outcome even when shutdown canceled the fetch.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := w.runs.CompleteRun(finalCtx, job.RunID, w.now(), status, fetched, errMsg); err != nil {
		logger.Error("complete fetch run failed", zap.Error(err))
	}
	metrics.ObserveFetchRun(string(status))
}

// populate retries failed fetches with exponential backoff. Each attempt
// resumes from the newest indexed paper already stored. A missing journal
// is not retried.
func (w *Worker) populate(ctx context.Context, job feeds.FetchJob, logger *zap.Logger) (int, error) {
	fetched := 0
	backoff := w.cfg.RetryBackoffBase
	for attempt := 0; ; attempt++ {
		stats, err := w.populator.PopulatePapers(ctx, job.ISSN, job.Limit)
		fetched += stats.Stored()
		if err == nil {
			return fetched, nil
		}
		if ctx.Err() != nil || attempt >= w.cfg.MaxRetries || errors.Is(err, feeds.ErrNotFound) {
			return fetched, err
		}
		logger.Warn("paper fetch attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fetched, err
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now().UTC()
}
