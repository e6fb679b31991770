package service

import (
	"context"
	"time"

	apperrors "raine/internal/errors"
	"raine/internal/models"
	"raine/internal/privacy"
	"raine/internal/ratelimit"
	"raine/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultNotificationsLimit = 50
	maxNotificationsLimit     = 100
)

// CallableService implements the operations authenticated clients invoke
// directly. Every method takes the verified caller id as uid.
type CallableService struct {
	store   CallableStore
	limiter RateLimiter
	handler MessageHandler
	logger  *logrus.Logger
	now     func() time.Time
}

func NewCallableService(store CallableStore, limiter RateLimiter, handler MessageHandler, logger *logrus.Logger) *CallableService {
	return &CallableService{
		store:   store,
		limiter: limiter,
		handler: handler,
		logger:  logger,
		now:     time.Now,
	}
}

// RefreshPushToken registers the caller's device token and returns the
// device id, generating one when the client did not send it.
func (s *CallableService) RefreshPushToken(ctx context.Context, uid string, req models.RefreshTokenRequest) (string, error) {
	if err := requireCaller(uid); err != nil {
		return "", err
	}
	if err := validation.ValidatePushToken(req.Token); err != nil {
		return "", err
	}
	if err := validation.ValidateOptionalID(req.DeviceID, "deviceId"); err != nil {
		return "", err
	}
	if err := validation.ValidateStringLength(req.AppVersion, "appVersion", 0, validation.MaxAppVersionLength); err != nil {
		return "", err
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	device := &models.Device{
		UserID:     uid,
		DeviceID:   deviceID,
		PushToken:  req.Token,
		Platform:   models.ParsePlatform(req.Platform),
		LastActive: s.now(),
		AppVersion: req.AppVersion,
	}
	if err := s.store.UpsertDevice(ctx, device); err != nil {
		return "", apperrors.NewDatabaseError("upsert device", err)
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldUserID:   privacy.MaskUserID(uid),
		LogFieldDeviceID: deviceID,
		LogFieldPlatform: device.Platform,
	}).Debug("Push token refreshed")
	return deviceID, nil
}

// SetTypingStatus sets or clears the caller's typing indicator in a room.
func (s *CallableService) SetTypingStatus(ctx context.Context, uid, roomID string, isTyping bool) error {
	if err := requireCaller(uid); err != nil {
		return err
	}
	if err := validation.ValidateID(roomID, "roomId"); err != nil {
		return err
	}

	return s.limiter.Limit(ctx, uid, ratelimit.ActionTypingStatus, func() error {
		if err := s.requireMember(ctx, roomID, uid); err != nil {
			return err
		}
		if isTyping {
			if err := s.store.SetTyping(ctx, roomID, uid, s.now()); err != nil {
				return apperrors.NewDatabaseError("set typing", err)
			}
			return nil
		}
		if err := s.store.ClearTyping(ctx, roomID, uid); err != nil {
			return apperrors.NewDatabaseError("clear typing", err)
		}
		return nil
	})
}

// MarkMessagesRead moves the caller's read cursor and optionally records a
// receipt for messageID. Returns the cursor time.
func (s *CallableService) MarkMessagesRead(ctx context.Context, uid, roomID, messageID string) (time.Time, error) {
	if err := requireCaller(uid); err != nil {
		return time.Time{}, err
	}
	if err := validation.ValidateID(roomID, "roomId"); err != nil {
		return time.Time{}, err
	}
	if err := validation.ValidateOptionalID(messageID, "messageId"); err != nil {
		return time.Time{}, err
	}
	if err := s.requireMember(ctx, roomID, uid); err != nil {
		return time.Time{}, err
	}

	now := s.now()
	if err := s.store.MarkRead(ctx, roomID, uid, messageID, now); err != nil {
		if _, ok := apperrors.As(err); ok {
			return time.Time{}, err
		}
		return time.Time{}, apperrors.NewDatabaseError("mark read", err)
	}
	return now, nil
}

// CreateRoom creates a room with the caller as its admin.
func (s *CallableService) CreateRoom(ctx context.Context, uid string, req models.CreateRoomRequest) (*models.Room, error) {
	if err := requireCaller(uid); err != nil {
		return nil, err
	}
	if err := validation.ValidateText(req.Name, "name", validation.MaxRoomNameLength); err != nil {
		return nil, err
	}

	var room *models.Room
	err := s.limiter.Limit(ctx, uid, ratelimit.ActionRoomCreate, func() error {
		room = &models.Room{
			ID:        uuid.NewString(),
			Name:      req.Name,
			PhotoURL:  req.PhotoURL,
			CreatedAt: s.now(),
		}
		if err := s.store.CreateRoom(ctx, room, uid); err != nil {
			return apperrors.NewDatabaseError("create room", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldUserID: privacy.MaskUserID(uid),
		LogFieldRoomID: room.ID,
	}).Info("Room created")
	return room, nil
}

// JoinRoom adds the caller to the room. joined is false for an existing member.
func (s *CallableService) JoinRoom(ctx context.Context, uid, roomID string) (bool, error) {
	if err := requireCaller(uid); err != nil {
		return false, err
	}
	if err := validation.ValidateID(roomID, "roomId"); err != nil {
		return false, err
	}
	joined, err := s.store.JoinRoom(ctx, roomID, uid, s.now())
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return false, err
		}
		return false, apperrors.NewDatabaseError("join room", err)
	}
	return joined, nil
}

// LeaveRoom removes the caller from the room. left is false for a non-member.
func (s *CallableService) LeaveRoom(ctx context.Context, uid, roomID string) (bool, error) {
	if err := requireCaller(uid); err != nil {
		return false, err
	}
	if err := validation.ValidateID(roomID, "roomId"); err != nil {
		return false, err
	}
	left, err := s.store.LeaveRoom(ctx, roomID, uid, s.now())
	if err != nil {
		return false, apperrors.NewDatabaseError("leave room", err)
	}
	return left, nil
}

// SendMessage stores a message from the caller and runs the message-created
// pipeline for it. Suspended users cannot send.
func (s *CallableService) SendMessage(ctx context.Context, uid, roomID string, req models.SendMessageRequest) (*models.Message, error) {
	if err := requireCaller(uid); err != nil {
		return nil, err
	}
	if err := validation.ValidateID(roomID, "roomId"); err != nil {
		return nil, err
	}
	if err := validation.ValidateText(req.Text, "text", validation.MaxMessageLength); err != nil {
		return nil, err
	}

	var msg *models.Message
	err := s.limiter.Limit(ctx, uid, ratelimit.ActionMessageSend, func() error {
		user, err := s.store.GetUser(ctx, uid)
		if err != nil {
			return apperrors.NewDatabaseError("get user", err)
		}
		if user == nil {
			return apperrors.NewNotFoundError("user", uid)
		}
		if user.Suspended {
			return apperrors.NewPermissionDeniedError("Account is suspended")
		}
		if err := s.requireMember(ctx, roomID, uid); err != nil {
			return err
		}

		msg = &models.Message{
			ID:        uuid.NewString(),
			RoomID:    roomID,
			SenderID:  uid,
			Text:      req.Text,
			Timestamp: s.now(),
			Visible:   true,
		}
		if err := s.store.InsertMessage(ctx, msg); err != nil {
			return apperrors.NewDatabaseError("insert message", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := models.MessageCreatedEvent{
		EventID:   uuid.NewString(),
		RoomID:    roomID,
		MessageID: msg.ID,
		Message:   msg.Summary(),
	}
	// The handler queues notification failures itself; an error here means
	// the event was not committed.
	if err := s.handler.HandleMessageCreated(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldRoomID:    roomID,
			LogFieldMessageID: msg.ID,
			LogFieldEventID:   event.EventID,
		}).Error("Failed to process message event")
		return nil, err
	}
	return msg, nil
}

// ReportUser files a pending moderation report against another user.
func (s *CallableService) ReportUser(ctx context.Context, uid string, req models.ReportUserRequest) (*models.UserReport, error) {
	if err := requireCaller(uid); err != nil {
		return nil, err
	}
	if err := validation.ValidateID(req.ReportedUserID, "reportedUserId"); err != nil {
		return nil, err
	}
	if req.ReportedUserID == uid {
		return nil, apperrors.NewInvalidInputError("reportedUserId", "cannot report yourself")
	}
	if err := validation.ValidateText(req.Reason, "reason", validation.MaxReasonLength); err != nil {
		return nil, err
	}
	if err := validation.ValidateStringLength(req.Description, "description", 0, validation.MaxDescriptionLength); err != nil {
		return nil, err
	}
	if err := validation.ValidateOptionalID(req.MessageID, "messageId"); err != nil {
		return nil, err
	}
	if err := validation.ValidateOptionalID(req.RoomID, "roomId"); err != nil {
		return nil, err
	}

	var report *models.UserReport
	err := s.limiter.Limit(ctx, uid, ratelimit.ActionReportUser, func() error {
		report = &models.UserReport{
			ID:             uuid.NewString(),
			ReporterID:     uid,
			ReportedUserID: req.ReportedUserID,
			Reason:         req.Reason,
			Description:    req.Description,
			MessageID:      req.MessageID,
			RoomID:         req.RoomID,
			Status:         models.ReportPending,
			CreatedAt:      s.now(),
		}
		if err := s.store.InsertReport(ctx, report); err != nil {
			return apperrors.NewDatabaseError("insert report", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldUserID: privacy.MaskUserID(uid),
		"report_id":    report.ID,
	}).Info("User report filed")
	return report, nil
}

// UpdateNotificationPreferences replaces the caller's push preferences.
func (s *CallableService) UpdateNotificationPreferences(ctx context.Context, uid string, prefs models.NotificationPreferences) error {
	if err := requireCaller(uid); err != nil {
		return err
	}
	if err := validation.ValidateQuietHours(prefs.QuietHoursStart, prefs.QuietHoursEnd); err != nil {
		return err
	}
	if err := s.store.UpdateNotificationPreferences(ctx, uid, prefs); err != nil {
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.NewDatabaseError("update notification preferences", err)
	}
	return nil
}

// SetRoomNotifications mutes (enabled=false) or unmutes a room for the caller.
func (s *CallableService) SetRoomNotifications(ctx context.Context, uid, roomID string, enabled bool) error {
	if err := requireCaller(uid); err != nil {
		return err
	}
	if err := validation.ValidateID(roomID, "roomId"); err != nil {
		return err
	}
	if err := s.requireMember(ctx, roomID, uid); err != nil {
		return err
	}
	if err := s.store.SetRoomNotifications(ctx, roomID, uid, enabled); err != nil {
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.NewDatabaseError("set room notifications", err)
	}
	return nil
}

// ListNotifications returns the caller's newest inbox entries.
func (s *CallableService) ListNotifications(ctx context.Context, uid string, limit int) ([]models.Notification, error) {
	if err := requireCaller(uid); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultNotificationsLimit
	}
	if limit > maxNotificationsLimit {
		limit = maxNotificationsLimit
	}
	items, err := s.store.ListNotifications(ctx, uid, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list notifications", err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

func (s *CallableService) requireMember(ctx context.Context, roomID, uid string) error {
	member, err := s.store.GetRoomMember(ctx, roomID, uid)
	if err != nil {
		return apperrors.NewDatabaseError("get room member", err)
	}
	if member == nil {
		return apperrors.NewPermissionDeniedError("Not a member of this room")
	}
	return nil
}

func requireCaller(uid string) error {
	if uid == "" {
		return apperrors.NewUnauthenticatedError("missing caller identity")
	}
	return nil
}
