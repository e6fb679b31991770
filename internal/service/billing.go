package service

import (
	"context"
	"time"

	"raine/internal/constants"
	apperrors "raine/internal/errors"
	"raine/internal/metrics"
	"raine/internal/models"
	"raine/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Texts of the billing notifications sent to users.
const (
	ExpiredTitle      = "Subscription Expired"
	ExpiredBody       = "Your subscription has expired. Renew to continue enjoying premium features."
	BillingIssueTitle = "Payment Issue"
	BillingIssueBody  = "There was a problem processing your payment. Please update your payment method."
)

// BillingService applies RevenueCat subscription events to user profiles.
type BillingService struct {
	store       BillingStore
	notifier    UserMessenger
	defaultPlan string
	logger      *logrus.Logger
	now         func() time.Time
}

func NewBillingService(store BillingStore, notifier UserMessenger, cfg models.BillingConfig, logger *logrus.Logger) *BillingService {
	plan := cfg.DefaultPlan
	if plan == "" {
		plan = constants.DefaultSubscriptionPlan
	}
	return &BillingService{
		store:       store,
		notifier:    notifier,
		defaultPlan: plan,
		logger:      logger,
		now:         time.Now,
	}
}

// ProcessEvent handles one webhook event. alreadyProcessed is true when the
// event id was handled before, in which case nothing changes. The processed
// marker is written only after the event was applied.
func (s *BillingService) ProcessEvent(ctx context.Context, event *models.RevenueCatEvent) (alreadyProcessed bool, err error) {
	if event == nil || event.ID == "" {
		return false, apperrors.NewInvalidInputError("event", "is required")
	}
	log := s.logger.WithFields(logrus.Fields{
		LogFieldEventID:   event.ID,
		LogFieldEventType: event.Type,
		LogFieldUserID:    privacy.MaskUserID(event.AppUserID),
	})

	processed, err := s.store.IsWebhookProcessed(ctx, event.ID)
	if err != nil {
		return false, apperrors.NewDatabaseError("check processed webhook", err)
	}
	if processed {
		log.Info("Webhook already processed")
		return true, nil
	}

	if err := s.apply(ctx, event, log); err != nil {
		log.WithError(err).Error("Failed to process webhook")
		return false, err
	}

	hook := &models.ProcessedWebhook{
		EventID:     event.ID,
		EventType:   event.Type,
		UserID:      event.AppUserID,
		ProcessedAt: s.now(),
	}
	if err := s.store.MarkWebhookProcessed(ctx, hook); err != nil {
		return false, apperrors.NewDatabaseError("mark webhook processed", err)
	}
	metrics.IncrementCounter(metrics.WebhooksProcessed, map[string]string{"type": event.Type}, "Billing webhooks applied")
	log.Info("Webhook processed")
	return false, nil
}

func (s *BillingService) apply(ctx context.Context, event *models.RevenueCatEvent, log *logrus.Entry) error {
	if event.Type == models.EventTest {
		log.Info("Received test webhook")
		return nil
	}

	now := s.now()
	update := models.SubscriptionUpdate{UpdatedAt: now}
	var notification *models.UserNotification

	switch event.Type {
	case models.EventInitialPurchase:
		update.Status = statusPtr(models.SubscriptionActive)
		update.Plan = s.planOf(event)
		update.StartedAt = &now
	case models.EventRenewal:
		update.Status = statusPtr(models.SubscriptionActive)
		update.Plan = s.planOf(event)
	case models.EventCancellation:
		update.Status = statusPtr(models.SubscriptionCancelled)
		update.CancelledAt = &now
	case models.EventExpiration:
		update.Status = statusPtr(models.SubscriptionExpired)
		update.ExpiredAt = &now
		notification = &models.UserNotification{
			Type:  models.NotificationSubscriptionExpired,
			Title: ExpiredTitle,
			Body:  ExpiredBody,
			Data: map[string]string{
				"type":   string(models.NotificationSubscriptionExpired),
				"action": "renew_subscription",
			},
		}
	case models.EventBillingIssue:
		update.Status = statusPtr(models.SubscriptionBillingIssue)
		notification = &models.UserNotification{
			Type:  models.NotificationBillingIssue,
			Title: BillingIssueTitle,
			Body:  BillingIssueBody,
			Data: map[string]string{
				"type":   string(models.NotificationBillingIssue),
				"action": "update_payment",
			},
		}
	case models.EventProductChange:
		update.Plan = s.planOf(event)
	default:
		log.Warn("Unhandled webhook event type")
		return nil
	}

	if event.AppUserID == "" {
		log.Warn("Webhook event has no app user id")
		return nil
	}
	user, err := s.store.GetUser(ctx, event.AppUserID)
	if err != nil {
		return apperrors.NewDatabaseError("get user", err)
	}
	if user == nil {
		log.Warn("Webhook for unknown user")
		return nil
	}

	if _, err := s.store.UpdateSubscription(ctx, event.AppUserID, update); err != nil {
		return apperrors.NewDatabaseError("update subscription", err)
	}

	if notification != nil && s.notifier != nil {
		if err := s.notifier.Notify(ctx, event.AppUserID, *notification); err != nil {
			return err
		}
	}
	return nil
}

func (s *BillingService) planOf(event *models.RevenueCatEvent) *string {
	plan := event.ProductID
	if plan == "" {
		plan = s.defaultPlan
	}
	return &plan
}

func statusPtr(status models.SubscriptionStatus) *models.SubscriptionStatus {
	return &status
}
