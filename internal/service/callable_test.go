package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"raine/internal/database"
	apperrors "raine/internal/errors"
	"raine/internal/models"
	"raine/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestCallable(t *testing.T, db *database.Database, limiter RateLimiter, handler MessageHandler) *CallableService {
	t.Helper()
	if handler == nil {
		h := &mockMessageHandler{}
		h.On("HandleMessageCreated", mock.Anything, mock.Anything).Return(nil)
		handler = h
	}
	s := NewCallableService(db, limiter, handler, testLogger())
	s.now = fixedClock(testNow)
	return s
}

func TestCallable_RequiresCaller(t *testing.T) {
	s := newTestCallable(t, newTestDB(t), allowAll{}, nil)
	ctx := context.Background()

	_, err := s.RefreshPushToken(ctx, "", models.RefreshTokenRequest{Token: "t"})
	assert.Equal(t, apperrors.ErrCodeUnauthenticated, apperrors.GetCode(err))
	assert.Equal(t, apperrors.ErrCodeUnauthenticated, apperrors.GetCode(s.SetTypingStatus(ctx, "", "r1", true)))
	_, err = s.MarkMessagesRead(ctx, "", "r1", "")
	assert.Equal(t, apperrors.ErrCodeUnauthenticated, apperrors.GetCode(err))
	_, err = s.SendMessage(ctx, "", "r1", models.SendMessageRequest{Text: "hi"})
	assert.Equal(t, apperrors.ErrCodeUnauthenticated, apperrors.GetCode(err))
}

func TestCallable_RefreshPushToken(t *testing.T) {
	db := newTestDB(t)
	s := newTestCallable(t, db, allowAll{}, nil)
	ctx := context.Background()

	_, err := s.RefreshPushToken(ctx, "u1", models.RefreshTokenRequest{})
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

	deviceID, err := s.RefreshPushToken(ctx, "u1", models.RefreshTokenRequest{Token: "tok-1", Platform: "ios"})
	require.NoError(t, err)
	assert.NotEmpty(t, deviceID)

	same, err := s.RefreshPushToken(ctx, "u1", models.RefreshTokenRequest{Token: "tok-2", DeviceID: deviceID, Platform: "blackberry"})
	require.NoError(t, err)
	assert.Equal(t, deviceID, same)

	devices, err := db.ListDevices(ctx, []string{"u1"})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "tok-2", devices[0].PushToken)
	assert.Equal(t, models.PlatformUnknown, devices[0].Platform)
	assert.True(t, devices[0].LastActive.Equal(testNow))
}

func TestCallable_TypingIsMemberGated(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "mallory", enabled)
	seedRoom(t, db, "r1", "Room", "alice")
	s := newTestCallable(t, db, allowAll{}, nil)
	ctx := context.Background()

	err := s.SetTypingStatus(ctx, "mallory", "r1", true)
	assert.Equal(t, apperrors.ErrCodePermissionDenied, apperrors.GetCode(err))

	require.NoError(t, s.SetTypingStatus(ctx, "alice", "r1", true))
	typing, err := db.ListTyping(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, typing, 1)
	assert.Equal(t, "alice", typing[0].UserID)

	require.NoError(t, s.SetTypingStatus(ctx, "alice", "r1", false))
	typing, err = db.ListTyping(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestCallable_TypingIsRateLimited(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedRoom(t, db, "r1", "Room", "alice")
	s := newTestCallable(t, db, ratelimit.NewLimiter(db, testLogger()), nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.SetTypingStatus(ctx, "alice", "r1", i%2 == 0))
	}
	err := s.SetTypingStatus(ctx, "alice", "r1", true)
	assert.Equal(t, apperrors.ErrCodeRateLimited, apperrors.GetCode(err))
}

func TestCallable_MarkMessagesRead(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedRoom(t, db, "r1", "Room", "alice")
	s := newTestCallable(t, db, allowAll{}, nil)
	ctx := context.Background()

	at, err := s.MarkMessagesRead(ctx, "alice", "r1", "m1")
	require.NoError(t, err)
	assert.True(t, at.Equal(testNow))

	member, err := db.GetRoomMember(ctx, "r1", "alice")
	require.NoError(t, err)
	require.NotNil(t, member.LastRead)
	assert.True(t, member.LastRead.Equal(testNow))

	mirror, err := db.GetUserRoom(ctx, "alice", "r1")
	require.NoError(t, err)
	require.NotNil(t, mirror.LastRead)
	assert.True(t, mirror.LastRead.Equal(testNow))

	_, err = s.MarkMessagesRead(ctx, "bob", "r1", "")
	assert.Equal(t, apperrors.ErrCodePermissionDenied, apperrors.GetCode(err))
}

func TestCallable_RoomLifecycle(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "bob", enabled)
	s := newTestCallable(t, db, allowAll{}, nil)
	ctx := context.Background()

	_, err := s.CreateRoom(ctx, "alice", models.CreateRoomRequest{Name: "  "})
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

	room, err := s.CreateRoom(ctx, "alice", models.CreateRoomRequest{Name: "Book club"})
	require.NoError(t, err)
	assert.Equal(t, 1, room.MemberCount)

	joined, err := s.JoinRoom(ctx, "bob", room.ID)
	require.NoError(t, err)
	assert.True(t, joined)
	joined, err = s.JoinRoom(ctx, "bob", room.ID)
	require.NoError(t, err)
	assert.False(t, joined)

	stored, err := db.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.MemberCount)

	left, err := s.LeaveRoom(ctx, "bob", room.ID)
	require.NoError(t, err)
	assert.True(t, left)
	left, err = s.LeaveRoom(ctx, "bob", room.ID)
	require.NoError(t, err)
	assert.False(t, left)

	_, err = s.JoinRoom(ctx, "bob", "missing")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestCallable_SendMessageRunsPipeline(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "bob", enabled)
	seedRoom(t, db, "r1", "Pair", "alice", "bob")

	handler := &mockMessageHandler{}
	handler.On("HandleMessageCreated", mock.Anything, mock.MatchedBy(func(e models.MessageCreatedEvent) bool {
		return e.RoomID == "r1" && e.EventID != "" && e.Message.Text == "hello" && e.Message.SenderID == "alice"
	})).Return(nil).Once()
	s := newTestCallable(t, db, allowAll{}, handler)

	msg, err := s.SendMessage(context.Background(), "alice", "r1", models.SendMessageRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "r1", msg.RoomID)
	assert.True(t, msg.Timestamp.Equal(testNow))
	handler.AssertExpectations(t)
}

func TestCallable_SendMessageSurfacesUncommittedEvent(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedRoom(t, db, "r1", "Solo", "alice")

	handler := &mockMessageHandler{}
	handler.On("HandleMessageCreated", mock.Anything, mock.Anything).
		Return(apperrors.NewDatabaseError("commit message event", errors.New("database is locked"))).Once()
	s := newTestCallable(t, db, allowAll{}, handler)

	msg, err := s.SendMessage(context.Background(), "alice", "r1", models.SendMessageRequest{Text: "hello"})
	assert.Nil(t, msg)
	assert.Equal(t, apperrors.ErrCodeDatabaseQuery, apperrors.GetCode(err))
	handler.AssertExpectations(t)
}

func TestCallable_SendMessageRejections(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "bob", enabled)
	seedUser(t, db, "eve", enabled)
	seedRoom(t, db, "r1", "Pair", "alice", "bob")
	require.NoError(t, db.SetSuspended(ctx, "bob", true, "spam", testNow))

	handler := &mockMessageHandler{}
	s := newTestCallable(t, db, allowAll{}, handler)

	_, err := s.SendMessage(ctx, "bob", "r1", models.SendMessageRequest{Text: "hi"})
	assert.Equal(t, apperrors.ErrCodePermissionDenied, apperrors.GetCode(err))

	_, err = s.SendMessage(ctx, "eve", "r1", models.SendMessageRequest{Text: "hi"})
	assert.Equal(t, apperrors.ErrCodePermissionDenied, apperrors.GetCode(err))

	_, err = s.SendMessage(ctx, "alice", "r1", models.SendMessageRequest{Text: ""})
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

	handler.AssertNotCalled(t, "HandleMessageCreated", mock.Anything, mock.Anything)
}

func TestCallable_SendMessageRateLimitWindow(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedRoom(t, db, "r1", "Solo", "alice")
	s := newTestCallable(t, db, ratelimit.NewLimiter(db, testLogger()), nil)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		_, err := s.SendMessage(ctx, "alice", "r1", models.SendMessageRequest{Text: "spam"})
		require.NoError(t, err, "message %d", i+1)
	}
	_, err := s.SendMessage(ctx, "alice", "r1", models.SendMessageRequest{Text: "spam"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRateLimited, apperrors.GetCode(err))
}

func TestCallable_ReportUser(t *testing.T) {
	db := newTestDB(t)
	s := newTestCallable(t, db, allowAll{}, nil)
	ctx := context.Background()

	_, err := s.ReportUser(ctx, "alice", models.ReportUserRequest{ReportedUserID: "alice", Reason: "spam"})
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

	_, err = s.ReportUser(ctx, "alice", models.ReportUserRequest{ReportedUserID: "bob"})
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

	report, err := s.ReportUser(ctx, "alice", models.ReportUserRequest{ReportedUserID: "bob", Reason: "spam", RoomID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReportPending, report.Status)
	assert.Equal(t, "alice", report.ReporterID)
	assert.NotEmpty(t, report.ID)
}

func TestCallable_PreferencesAndMute(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "alice", enabled)
	seedRoom(t, db, "r1", "Room", "alice")
	s := newTestCallable(t, db, allowAll{}, nil)

	err := s.UpdateNotificationPreferences(ctx, "alice", models.NotificationPreferences{Enabled: true, QuietHoursStart: "7pm"})
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

	prefs := models.NotificationPreferences{Enabled: true, QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}
	require.NoError(t, s.UpdateNotificationPreferences(ctx, "alice", prefs))
	user, err := db.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, prefs, user.NotificationPreferences)

	err = s.UpdateNotificationPreferences(ctx, "ghost", prefs)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

	require.NoError(t, s.SetRoomNotifications(ctx, "alice", "r1", false))
	member, err := db.GetRoomMember(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.False(t, member.NotificationsEnabled)

	err = s.SetRoomNotifications(ctx, "bob", "r1", false)
	assert.Equal(t, apperrors.ErrCodePermissionDenied, apperrors.GetCode(err))
}

func TestCallable_ListNotifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := newTestCallable(t, db, allowAll{}, nil)

	items, err := s.ListNotifications(ctx, "alice", 0)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertNotification(ctx, &models.Notification{
			ID:        string(rune('a' + i)),
			UserID:    "alice",
			Type:      models.NotificationSystem,
			Title:     "note",
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		}))
	}
	items, err = s.ListNotifications(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].ID)
}
