package service

import (
	"context"
	"fmt"
	"time"

	"raine/internal/constants"
	apperrors "raine/internal/errors"
	"raine/internal/metrics"
	"raine/internal/models"

	"github.com/sirupsen/logrus"
)

// RetryRunResult counts what one pass over the retry queue did.
type RetryRunResult struct {
	Total        int
	Succeeded    int
	Failed       int
	DeadLettered int
}

// RetryProcessor re-attempts failed dispatches from the durable queue.
type RetryProcessor struct {
	store      RetryStore
	notifier   Notifier
	maxRetries int
	batchSize  int
	logger     *logrus.Logger
	now        func() time.Time
}

func NewRetryProcessor(store RetryStore, notifier Notifier, cfg models.RetryQueueConfig, logger *logrus.Logger) *RetryProcessor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = constants.DefaultMaxRetries
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.DefaultRetryBatchSize
	}
	return &RetryProcessor{
		store:      store,
		notifier:   notifier,
		maxRetries: cfg.MaxRetries,
		batchSize:  cfg.BatchSize,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessQueue handles up to one batch of the oldest retry records. Records
// that already used their budget go to the dead-letter store without another
// attempt. Errors on single records are logged and the run continues.
func (p *RetryProcessor) ProcessQueue(ctx context.Context) (*RetryRunResult, error) {
	records, err := p.store.ListRetries(ctx, p.batchSize)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list retries", err)
	}

	result := &RetryRunResult{Total: len(records)}
	if len(records) == 0 {
		p.updateDepth(ctx)
		return result, nil
	}
	p.logger.WithField(LogFieldCount, len(records)).Info("Starting retry queue run")

	reason := fmt.Sprintf("Exceeded max retries (%d)", p.maxRetries)
	var done []string
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		record := &records[i]
		log := p.logger.WithFields(logrus.Fields{
			LogFieldRetryID:    record.ID,
			LogFieldRoomID:     record.RoomID,
			LogFieldRetryCount: record.RetryCount,
		})

		if record.RetryCount >= p.maxRetries {
			if err := p.store.AddDeadLetter(ctx, record, reason, p.now()); err != nil {
				log.WithError(err).Error("Failed to move retry to dead letter")
				continue
			}
			done = append(done, record.ID)
			result.DeadLettered++
			log.Warn("Notification retry dead-lettered")
			continue
		}

		if _, err := p.notifier.Dispatch(ctx, record.RoomID, record.Message); err != nil {
			result.Failed++
			log.WithError(err).Warn("Notification retry failed")
			if markErr := p.store.MarkRetryFailed(ctx, record.ID, err.Error(), p.now()); markErr != nil {
				log.WithError(markErr).Error("Failed to record retry failure")
			}
			continue
		}
		done = append(done, record.ID)
		result.Succeeded++
	}

	if len(done) > 0 {
		if _, err := p.store.DeleteRetries(ctx, done, constants.MaxBatchWriteSize); err != nil {
			p.logger.WithError(err).WithField(LogFieldCount, len(done)).Error("Failed to delete processed retries")
		}
	}

	metrics.AddToCounter(metrics.RetriesSucceeded, float64(result.Succeeded), nil, "Retried notifications delivered")
	metrics.AddToCounter(metrics.RetriesDeadLettered, float64(result.DeadLettered), nil, "Retries moved to the dead-letter store")
	p.updateDepth(ctx)

	p.logger.WithFields(logrus.Fields{
		LogFieldCount:     result.Total,
		LogFieldSucceeded: result.Succeeded,
		LogFieldFailed:    result.Failed,
		"dead_lettered":   result.DeadLettered,
	}).Info("Retry queue run completed")
	return result, nil
}

func (p *RetryProcessor) updateDepth(ctx context.Context) {
	depth, err := p.store.CountRetries(ctx)
	if err != nil {
		p.logger.WithError(err).Debug("Failed to count retry queue")
		return
	}
	metrics.SetGauge(metrics.RetryQueueDepth, float64(depth), nil, "Records waiting in the notification retry queue")
}
