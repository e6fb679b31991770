package models

import "time"

type NotificationType string

const (
	NotificationNewMessage          NotificationType = "new_message"
	NotificationBillingIssue        NotificationType = "billing_issue"
	NotificationSubscriptionExpired NotificationType = "subscription_expired"
	NotificationUserReport          NotificationType = "user_report"
	NotificationSystem              NotificationType = "system"
)

// Notification is an in-app inbox entry.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NotificationRetry is a failed dispatch waiting in the durable retry queue.
type NotificationRetry struct {
	ID          string         `json:"id"`
	RoomID      string         `json:"roomId"`
	MessageID   string         `json:"messageId"`
	Message     MessageSummary `json:"message"`
	Error       string         `json:"error"`
	RetryCount  int            `json:"retryCount"`
	LastError   string         `json:"lastError,omitempty"`
	LastRetryAt *time.Time     `json:"lastRetryAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// DeadLetter is a retry that exhausted its budget. Never reprocessed.
type DeadLetter struct {
	NotificationRetry
	Reason  string    `json:"reason"`
	MovedAt time.Time `json:"movedAt"`
}

type ProcessedEvent struct {
	EventID      string    `json:"eventId"`
	FunctionName string    `json:"functionName"`
	ProcessedAt  time.Time `json:"processedAt"`
}

type ProcessedWebhook struct {
	EventID     string    `json:"eventId"`
	EventType   string    `json:"eventType"`
	UserID      string    `json:"userId,omitempty"`
	ProcessedAt time.Time `json:"processedAt"`
}

type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportDismissed ReportStatus = "dismissed"
)

type UserReport struct {
	ID             string       `json:"id"`
	ReporterID     string       `json:"reporterId"`
	ReportedUserID string       `json:"reportedUserId"`
	Reason         string       `json:"reason"`
	Description    string       `json:"description,omitempty"`
	MessageID      string       `json:"messageId,omitempty"`
	RoomID         string       `json:"roomId,omitempty"`
	Status         ReportStatus `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// UserNotification is a direct message to one user, stored in the inbox
// and pushed to all of the user's devices.
type UserNotification struct {
	Type  NotificationType
	Title string
	Body  string
	Data  map[string]string
}
