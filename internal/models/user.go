package models

import "time"

// SubscriptionStatus is the billing state of a user account
type SubscriptionStatus string

const (
	SubscriptionFree         SubscriptionStatus = "free"
	SubscriptionActive       SubscriptionStatus = "active"
	SubscriptionCancelled    SubscriptionStatus = "cancelled"
	SubscriptionExpired      SubscriptionStatus = "expired"
	SubscriptionBillingIssue SubscriptionStatus = "billing_issue"
)

// NotificationPreferences holds a user's push settings.
// Quiet hours are "HH:MM" strings; either bound empty disables quiet hours.
type NotificationPreferences struct {
	Enabled         bool   `json:"enabled"`
	QuietHoursStart string `json:"quietHoursStart,omitempty"`
	QuietHoursEnd   string `json:"quietHoursEnd,omitempty"`
}

type User struct {
	ID                      string                  `json:"uid"`
	Email                   string                  `json:"email"`
	DisplayName             string                  `json:"displayName"`
	PhotoURL                string                  `json:"photoURL,omitempty"`
	SubscriptionStatus      SubscriptionStatus      `json:"subscriptionStatus"`
	SubscriptionPlan        string                  `json:"subscriptionPlan,omitempty"`
	SubscriptionStartedAt   *time.Time              `json:"subscriptionStartedAt,omitempty"`
	SubscriptionUpdatedAt   *time.Time              `json:"subscriptionUpdatedAt,omitempty"`
	SubscriptionCancelledAt *time.Time              `json:"subscriptionCancelledAt,omitempty"`
	SubscriptionExpiredAt   *time.Time              `json:"subscriptionExpiredAt,omitempty"`
	NotificationPreferences NotificationPreferences `json:"notificationPreferences"`
	Suspended               bool                    `json:"suspended"`
	SuspendedAt             *time.Time              `json:"suspendedAt,omitempty"`
	SuspendReason           string                  `json:"suspendReason,omitempty"`
	CreatedAt               time.Time               `json:"createdAt"`
	LastSeen                *time.Time              `json:"lastSeen,omitempty"`
}

// SubscriptionUpdate describes a partial change to a user's subscription
// fields. Nil fields are left untouched.
type SubscriptionUpdate struct {
	Status      *SubscriptionStatus
	Plan        *string
	StartedAt   *time.Time
	CancelledAt *time.Time
	ExpiredAt   *time.Time
	UpdatedAt   time.Time
}

// AccountEvent is delivered by the identity provider on signup and deletion.
type AccountEvent struct {
	EventID     string `json:"eventId"`
	UserID      string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}
