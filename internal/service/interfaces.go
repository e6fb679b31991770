package service

import (
	"context"
	"time"

	"raine/internal/database"
	"raine/internal/models"
)

// TokenPruner removes devices whose push tokens were rejected.
type TokenPruner interface {
	DeleteDevices(ctx context.Context, refs []models.DeviceRef, chunkSize int) (int, error)
}

// DispatchStore is the read side of the notification pipeline plus token pruning.
type DispatchStore interface {
	TokenPruner

	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	ListRoomMembers(ctx context.Context, roomID string) ([]models.RoomMember, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	ListDevices(ctx context.Context, userIDs []string) ([]models.Device, error)
}

// Notifier fans a message out to the members of a room.
type Notifier interface {
	Dispatch(ctx context.Context, roomID string, msg models.MessageSummary) (*DispatchOutcome, error)
}

type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	CommitMessageEvent(ctx context.Context, eventID, roomID string, msg models.MessageSummary, now time.Time) error
	EnqueueRetry(ctx context.Context, r *models.NotificationRetry) error
}

type RetryStore interface {
	ListRetries(ctx context.Context, limit int) ([]models.NotificationRetry, error)
	MarkRetryFailed(ctx context.Context, id, lastError string, now time.Time) error
	AddDeadLetter(ctx context.Context, r *models.NotificationRetry, reason string, now time.Time) error
	DeleteRetries(ctx context.Context, ids []string, chunkSize int) (int, error)
	CountRetries(ctx context.Context) (int, error)
}

type SweepStore interface {
	DeleteStaleDevices(ctx context.Context, before time.Time, chunkSize int) (int, error)
	DeleteProcessedEventsBefore(ctx context.Context, before time.Time, limit int) (int, error)
	DeleteProcessedWebhooksBefore(ctx context.Context, before time.Time, limit int) (int, error)
	DeleteRateLimitsBefore(ctx context.Context, before time.Time, limit int) (int, error)
	DeleteTypingBefore(ctx context.Context, before time.Time) (int, error)
}

type AccountStore interface {
	CreateUser(ctx context.Context, eventID string, u *models.User) error
	PurgeUser(ctx context.Context, eventID, userID string, now time.Time) (*database.PurgeReport, error)
}

// CallableStore backs the authenticated client operations.
type CallableStore interface {
	GetRoomMember(ctx context.Context, roomID, userID string) (*models.RoomMember, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpsertDevice(ctx context.Context, device *models.Device) error
	CreateRoom(ctx context.Context, room *models.Room, creatorID string) error
	JoinRoom(ctx context.Context, roomID, userID string, now time.Time) (bool, error)
	LeaveRoom(ctx context.Context, roomID, userID string, now time.Time) (bool, error)
	SetRoomNotifications(ctx context.Context, roomID, userID string, enabled bool) error
	MarkRead(ctx context.Context, roomID, userID, messageID string, now time.Time) error
	InsertMessage(ctx context.Context, msg *models.Message) error
	SetTyping(ctx context.Context, roomID, userID string, now time.Time) error
	ClearTyping(ctx context.Context, roomID, userID string) error
	InsertReport(ctx context.Context, r *models.UserReport) error
	UpdateNotificationPreferences(ctx context.Context, userID string, prefs models.NotificationPreferences) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

type BillingStore interface {
	IsWebhookProcessed(ctx context.Context, eventID string) (bool, error)
	MarkWebhookProcessed(ctx context.Context, hook *models.ProcessedWebhook) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateSubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) (bool, error)
}

type UserNotifierStore interface {
	TokenPruner
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListDevices(ctx context.Context, userIDs []string) ([]models.Device, error)
}

// UserMessenger delivers a direct notification to one user.
type UserMessenger interface {
	Notify(ctx context.Context, userID string, n models.UserNotification) error
}

// RateLimiter gates an operation on the caller's sliding-window budget.
type RateLimiter interface {
	Limit(ctx context.Context, userID, action string, fn func() error) error
}

// MessageHandler processes one message-created delivery.
type MessageHandler interface {
	HandleMessageCreated(ctx context.Context, event models.MessageCreatedEvent) error
}

var (
	_ DispatchStore     = (*database.Database)(nil)
	_ EventStore        = (*database.Database)(nil)
	_ RetryStore        = (*database.Database)(nil)
	_ SweepStore        = (*database.Database)(nil)
	_ AccountStore      = (*database.Database)(nil)
	_ CallableStore     = (*database.Database)(nil)
	_ BillingStore      = (*database.Database)(nil)
	_ UserNotifierStore = (*database.Database)(nil)
)
