package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"telecine/internal/config"
	"telecine/internal/logging"
	"telecine/internal/pool"
	"telecine/internal/services"
	"telecine/internal/store"
)

const feedBatchSize = 16

// FeedQueue is the durable queue surface the feeder polls.
type FeedQueue interface {
	NextPending(ctx context.Context, limit int) ([]*store.QueuedJob, error)
	MarkRunning(ctx context.Context, jobID string) (bool, error)
	RemoveJob(ctx context.Context, jobID string) error
	Requeue(ctx context.Context, jobIDs []string) error
}

// Feeder polls the durable job queue and dispatches pending rows into the
// worker pools. MarkRunning's compare-and-set keeps execution at most once
// even if several daemons share a database.
type Feeder struct {
	queue         FeedQueue
	submitter     *Submitter
	interval      time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
}

func NewFeeder(queue FeedQueue, submitter *Submitter, cfg *config.Config, logger *slog.Logger) *Feeder {
	interval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	retryInterval := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	if retryInterval <= 0 {
		retryInterval = 10 * time.Second
	}
	return &Feeder{
		queue:         queue,
		submitter:     submitter,
		interval:      interval,
		retryInterval: retryInterval,
		logger:        logging.NewComponentLogger(logger, "feeder"),
	}
}

// Run polls until the context is cancelled.
func (f *Feeder) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.dispatchBatch(ctx); err != nil {
				f.logger.Warn("queue dispatch failed, backing off", logging.Error(err))
				select {
				case <-time.After(f.retryInterval):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (f *Feeder) dispatchBatch(ctx context.Context) error {
	rows, err := f.queue.NextPending(ctx, feedBatchSize)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		// One correlation id per polling batch.
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}

	for _, row := range rows {
		picked, err := f.queue.MarkRunning(ctx, row.ID)
		if err != nil {
			return err
		}
		if !picked {
			continue
		}

		rowCtx := services.WithSceneID(ctx, row.SceneID)
		rowCtx = services.WithPhase(rowCtx, string(row.Phase))
		err = f.submitter.Dispatch(rowCtx, row)
		switch {
		case err == nil:
		case pool.IsDuplicate(err):
			// An in-memory job already covers this pair; the row is stale.
			if removeErr := f.queue.RemoveJob(ctx, row.ID); removeErr != nil {
				f.logger.Warn("failed to drop stale job row",
					logging.String(logging.FieldJobID, row.ID), logging.Error(removeErr))
			}
		case errors.Is(err, pool.ErrPoolStopped), errors.Is(err, pool.ErrPhaseUnavailable):
			if requeueErr := f.queue.Requeue(ctx, []string{row.ID}); requeueErr != nil {
				f.logger.Warn("failed to requeue job",
					logging.String(logging.FieldJobID, row.ID), logging.Error(requeueErr))
			}
			return nil
		case errorsIsValidation(err):
			f.logger.Warn("dropping unrunnable queued job",
				logging.String(logging.FieldJobID, row.ID),
				logging.Int64(logging.FieldSceneID, row.SceneID),
				logging.String(logging.FieldPhase, string(row.Phase)),
				logging.Error(err))
			if removeErr := f.queue.RemoveJob(ctx, row.ID); removeErr != nil {
				f.logger.Warn("failed to drop unrunnable job row",
					logging.String(logging.FieldJobID, row.ID), logging.Error(removeErr))
			}
		default:
			if requeueErr := f.queue.Requeue(ctx, []string{row.ID}); requeueErr != nil {
				f.logger.Warn("failed to requeue job",
					logging.String(logging.FieldJobID, row.ID), logging.Error(requeueErr))
			}
			return err
		}
	}
	return nil
}
