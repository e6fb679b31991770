package service

import (
	"context"
	"errors"
	"time"

	"raine/internal/database"
	apperrors "raine/internal/errors"
	"raine/internal/metrics"
	"raine/internal/models"
	"raine/internal/privacy"
	"raine/internal/validation"

	"github.com/sirupsen/logrus"
)

// AccountService reacts to identity-provider signup and deletion events.
type AccountService struct {
	store  AccountStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewAccountService(store AccountStore, logger *logrus.Logger) *AccountService {
	return &AccountService{store: store, logger: logger, now: time.Now}
}

// HandleUserCreated creates the profile of a new account on the free plan
// with notifications enabled.
func (s *AccountService) HandleUserCreated(ctx context.Context, event models.AccountEvent) error {
	if err := validateAccountEvent(event); err != nil {
		return err
	}
	log := s.logger.WithFields(logrus.Fields{
		LogFieldEventID: event.EventID,
		LogFieldUserID:  privacy.MaskUserID(event.UserID),
	})

	now := s.now()
	user := &models.User{
		ID:                      event.UserID,
		Email:                   event.Email,
		DisplayName:             event.DisplayName,
		PhotoURL:                event.PhotoURL,
		SubscriptionStatus:      models.SubscriptionFree,
		NotificationPreferences: models.NotificationPreferences{Enabled: true},
		CreatedAt:               now,
		LastSeen:                &now,
	}
	if err := s.store.CreateUser(ctx, event.EventID, user); err != nil {
		if errors.Is(err, database.ErrAlreadyProcessed) {
			log.Info("Event already processed")
			metrics.IncrementCounter(metrics.EventsDuplicate, map[string]string{"function": "onUserCreate"}, "Duplicate event deliveries")
			return nil
		}
		log.WithError(err).Error("Failed to create user profile")
		return apperrors.NewDatabaseError("create user", err)
	}
	log.Info("User profile created")
	return nil
}

// HandleUserDeleted removes everything the user owns or is referenced by.
func (s *AccountService) HandleUserDeleted(ctx context.Context, event models.AccountEvent) error {
	if err := validateAccountEvent(event); err != nil {
		return err
	}
	log := s.logger.WithFields(logrus.Fields{
		LogFieldEventID: event.EventID,
		LogFieldUserID:  privacy.MaskUserID(event.UserID),
	})

	report, err := s.store.PurgeUser(ctx, event.EventID, event.UserID, s.now())
	if err != nil {
		if errors.Is(err, database.ErrAlreadyProcessed) {
			log.Info("Event already processed")
			metrics.IncrementCounter(metrics.EventsDuplicate, map[string]string{"function": "onUserDelete"}, "Duplicate event deliveries")
			return nil
		}
		log.WithError(err).Error("Failed to purge user data")
		return apperrors.NewDatabaseError("purge user", err)
	}

	log.WithFields(logrus.Fields{
		"devices":       report.Devices,
		"memberships":   report.Memberships,
		"notifications": report.Notifications,
		"reports":       report.Reports,
	}).Info("User data purged")
	return nil
}

func validateAccountEvent(event models.AccountEvent) error {
	if err := validation.ValidateID(event.EventID, "eventId"); err != nil {
		return err
	}
	return validation.ValidateID(event.UserID, "uid")
}
