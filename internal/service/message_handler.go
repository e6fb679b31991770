package service

import (
	"context"
	"errors"
	"time"

	"raine/internal/database"
	apperrors "raine/internal/errors"
	"raine/internal/metrics"
	"raine/internal/models"
	"raine/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MessageEventHandler applies a message-created delivery exactly once and
// hands failed notifications to the retry queue.
type MessageEventHandler struct {
	store    EventStore
	notifier Notifier
	logger   *logrus.Logger
	now      func() time.Time
}

func NewMessageEventHandler(store EventStore, notifier Notifier, logger *logrus.Logger) *MessageEventHandler {
	return &MessageEventHandler{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleMessageCreated records the delivery, updates the room summary and
// the sender's lastSeen, then notifies the room. A duplicate delivery is a
// no-op. Store failures are returned so the trigger can redeliver; a
// notification failure is parked in the retry queue instead.
func (h *MessageEventHandler) HandleMessageCreated(ctx context.Context, event models.MessageCreatedEvent) error {
	ctx, span := tracing.StartSpan(ctx, "event.message_created",
		tracing.AttrEventID.String(event.EventID),
		tracing.AttrRoomID.String(event.RoomID))
	defer span.End()

	log := h.logger.WithFields(logrus.Fields{
		LogFieldEventID:   event.EventID,
		LogFieldRoomID:    event.RoomID,
		LogFieldMessageID: event.MessageID,
	})

	processed, err := h.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return apperrors.NewDatabaseError("check processed event", err)
	}
	if processed {
		log.Info("Event already processed")
		metrics.IncrementCounter(metrics.EventsDuplicate, map[string]string{"function": "onMessageCreated"}, "Duplicate event deliveries")
		return nil
	}

	if err := h.store.CommitMessageEvent(ctx, event.EventID, event.RoomID, event.Message, h.now()); err != nil {
		if errors.Is(err, database.ErrAlreadyProcessed) {
			log.Info("Event already processed")
			metrics.IncrementCounter(metrics.EventsDuplicate, map[string]string{"function": "onMessageCreated"}, "Duplicate event deliveries")
			return nil
		}
		tracing.RecordError(ctx, err)
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.NewDatabaseError("commit message event", err)
	}

	outcome, err := h.notifier.Dispatch(ctx, event.RoomID, event.Message)
	if err == nil {
		log.WithFields(logrus.Fields{
			LogFieldRecipients: outcome.Recipients,
			LogFieldSucceeded:  outcome.Succeeded,
		}).Debug("Message event processed")
		return nil
	}

	log.WithError(err).Error("Failed to send notifications, queueing retry")
	retryRecord := &models.NotificationRetry{
		ID:         uuid.NewString(),
		RoomID:     event.RoomID,
		MessageID:  event.MessageID,
		Message:    event.Message,
		Error:      err.Error(),
		RetryCount: 0,
		CreatedAt:  h.now(),
	}
	if enqueueErr := h.store.EnqueueRetry(ctx, retryRecord); enqueueErr != nil {
		log.WithError(enqueueErr).Error("Failed to queue notification retry")
		tracing.RecordError(ctx, enqueueErr)
		return apperrors.NewDatabaseError("enqueue retry", enqueueErr)
	}
	metrics.IncrementCounter(metrics.RetriesEnqueued, nil, "Notifications parked in the retry queue")
	log.WithField(LogFieldRetryID, retryRecord.ID).Info("Notification retry queued")
	return nil
}
