package service

import (
	"context"
	"strings"
	"time"

	apperrors "raine/internal/errors"
	"raine/internal/models"
	"raine/internal/privacy"
	"raine/pkg/push"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UserNotifier writes an inbox entry for one user and pushes it to every
// device the user has. Quiet hours do not apply.
type UserNotifier struct {
	store  UserNotifierStore
	sender push.Sender
	logger *logrus.Logger
	now    func() time.Time
}

func NewUserNotifier(store UserNotifierStore, sender push.Sender, logger *logrus.Logger) *UserNotifier {
	return &UserNotifier{store: store, sender: sender, logger: logger, now: time.Now}
}

func (n *UserNotifier) Notify(ctx context.Context, userID string, note models.UserNotification) error {
	log := n.logger.WithFields(logrus.Fields{
		LogFieldUserID:    privacy.MaskUserID(userID),
		LogFieldEventType: note.Type,
	})

	entry := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      note.Type,
		Title:     note.Title,
		Body:      note.Body,
		Data:      note.Data,
		CreatedAt: n.now(),
	}
	if err := n.store.InsertNotification(ctx, entry); err != nil {
		return apperrors.NewDatabaseError("insert notification", err)
	}

	devices, err := n.store.ListDevices(ctx, []string{userID})
	if err != nil {
		return apperrors.NewDatabaseError("list devices", err)
	}
	var (
		tokens []string
		refs   []models.DeviceRef
	)
	for _, device := range devices {
		if strings.TrimSpace(device.PushToken) == "" {
			continue
		}
		tokens = append(tokens, device.PushToken)
		refs = append(refs, models.DeviceRef{UserID: device.UserID, DeviceID: device.DeviceID})
	}
	if len(tokens) == 0 {
		log.Debug("No push tokens for user")
		return nil
	}

	resp, err := n.sender.SendEachForMulticast(ctx, &push.MulticastMessage{
		Tokens:       tokens,
		Notification: &push.Notification{Title: note.Title, Body: note.Body},
		Data:         note.Data,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to push user notification")
		return err
	}

	outcome := &DispatchOutcome{Recipients: 1, Attempted: len(tokens)}
	stale := collectResults(resp, refs, outcome, log)
	outcome.Pruned = pruneDevices(ctx, n.store, stale, log)
	recordDelivery(outcome)

	log.WithFields(logrus.Fields{
		LogFieldTokens:    outcome.Attempted,
		LogFieldSucceeded: outcome.Succeeded,
		LogFieldPruned:    outcome.Pruned,
	}).Info("User notification sent")
	return nil
}
