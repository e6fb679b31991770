package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	apperrors "raine/internal/errors"
	"raine/internal/models"
	"raine/pkg/push"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, store DispatchStore, sender push.Sender) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(store, sender, models.NotificationsConfig{}, testLogger())
	require.NoError(t, err)
	d.now = fixedClock(testNow)
	return d
}

func TestIsInQuietHours(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC) }
	overnight := models.NotificationPreferences{Enabled: true, QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}
	daytime := models.NotificationPreferences{Enabled: true, QuietHoursStart: "09:00", QuietHoursEnd: "17:00"}

	tests := []struct {
		name  string
		prefs models.NotificationPreferences
		now   time.Time
		want  bool
	}{
		{"overnight late evening", overnight, at(23, 0), true},
		{"overnight midday", overnight, at(12, 0), false},
		{"overnight end is exclusive", overnight, at(7, 0), false},
		{"overnight just before end", overnight, at(6, 59), true},
		{"overnight start is inclusive", overnight, at(22, 0), true},
		{"daytime inside", daytime, at(12, 30), true},
		{"daytime before", daytime, at(8, 59), false},
		{"daytime end", daytime, at(17, 0), false},
		{"missing start", models.NotificationPreferences{QuietHoursEnd: "07:00"}, at(3, 0), false},
		{"missing end", models.NotificationPreferences{QuietHoursStart: "22:00"}, at(23, 0), false},
		{"malformed hour", models.NotificationPreferences{QuietHoursStart: "25:00", QuietHoursEnd: "07:00"}, at(3, 0), false},
		{"malformed text", models.NotificationPreferences{QuietHoursStart: "late", QuietHoursEnd: "07:00"}, at(3, 0), false},
		{"single digit hour", models.NotificationPreferences{QuietHoursStart: "22:00", QuietHoursEnd: "7:00"}, at(6, 0), true},
		{"empty window", models.NotificationPreferences{QuietHoursStart: "10:00", QuietHoursEnd: "10:00"}, at(10, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInQuietHours(tt.prefs, tt.now))
		})
	}
}

func TestTruncateMessage(t *testing.T) {
	long := strings.Repeat("a", 150)
	got := TruncateMessage(long, 100)
	assert.Equal(t, 100, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("a", 97)+"...", got)

	assert.Equal(t, "short", TruncateMessage("short", 100))
	assert.Equal(t, strings.Repeat("b", 100), TruncateMessage(strings.Repeat("b", 100), 100))

	emoji := strings.Repeat("é", 120)
	got = TruncateMessage(emoji, 100)
	assert.Equal(t, 100, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "ab", TruncateMessage("abcdef", 2))
}

func TestDispatcher_ThreeMemberRoomTargetsTwoRecipients(t *testing.T) {
	db := newTestDB(t)
	for _, id := range []string{"alice", "bob", "carol"} {
		seedUser(t, db, id, enabled)
		seedDevice(t, db, id, "phone", "token-"+id)
	}
	seedRoom(t, db, "r1", "Friends", "alice", "bob", "carol")

	sender := &fakeSender{}
	d := newTestDispatcher(t, db, sender)

	outcome, err := d.Dispatch(context.Background(), "r1", models.MessageSummary{Text: "hello", SenderID: "alice", Timestamp: testNow})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Recipients)
	assert.Equal(t, 2, outcome.Attempted)
	assert.Equal(t, 2, outcome.Succeeded)
	assert.Equal(t, 0, outcome.Pruned)

	calls := sender.Calls()
	require.Len(t, calls, 1)
	msg := calls[0]
	assert.ElementsMatch(t, []string{"token-bob", "token-carol"}, msg.Tokens)
	assert.Equal(t, "Friends", msg.Notification.Title)
	assert.Equal(t, "hello", msg.Notification.Body)
	assert.Equal(t, map[string]string{"roomId": "r1", "senderId": "alice", "type": "new_message"}, msg.Data)
	require.NotNil(t, msg.APNS)
	require.NotNil(t, msg.APNS.Badge)
	assert.Equal(t, 1, *msg.APNS.Badge)
	assert.Equal(t, "default", msg.APNS.Sound)
	require.NotNil(t, msg.Android)
	assert.Equal(t, "high", msg.Android.Priority)
	assert.Equal(t, "default", msg.Android.Sound)
	assert.Equal(t, "FLUTTER_NOTIFICATION_CLICK", msg.Android.ClickAction)
}

func TestDispatcher_PrunesUnregisteredToken(t *testing.T) {
	db := newTestDB(t)
	for _, id := range []string{"alice", "bob", "carol"} {
		seedUser(t, db, id, enabled)
		seedDevice(t, db, id, "phone", "token-"+id)
	}
	seedRoom(t, db, "r1", "Friends", "alice", "bob", "carol")

	sender := &fakeSender{failures: map[string]*push.SendError{
		"token-carol": {Code: push.CodeTokenNotRegistered, Message: "gone"},
	}}
	d := newTestDispatcher(t, db, sender)

	outcome, err := d.Dispatch(context.Background(), "r1", models.MessageSummary{Text: "hi", SenderID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Succeeded)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 1, outcome.Pruned)

	devices, err := db.ListDevices(context.Background(), []string{"bob", "carol"})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "bob", devices[0].UserID)
}

func TestDispatcher_OtherFailuresAreNotPruned(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "bob", enabled)
	seedDevice(t, db, "bob", "phone", "token-bob")
	seedRoom(t, db, "r1", "Pair", "alice", "bob")

	sender := &fakeSender{failures: map[string]*push.SendError{
		"token-bob": {Code: push.CodeServerUnavailable, Message: "try later"},
	}}
	d := newTestDispatcher(t, db, sender)

	outcome, err := d.Dispatch(context.Background(), "r1", models.MessageSummary{Text: "hi", SenderID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 0, outcome.Pruned)

	devices, err := db.ListDevices(context.Background(), []string{"bob"})
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestDispatcher_SkipsIneligibleRecipients(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "bob", models.NotificationPreferences{Enabled: false})
	seedUser(t, db, "carol", models.NotificationPreferences{Enabled: true, QuietHoursStart: "11:00", QuietHoursEnd: "13:00"})
	seedUser(t, db, "dave", enabled)
	seedUser(t, db, "erin", enabled)
	for _, id := range []string{"bob", "carol", "dave", "erin"} {
		seedDevice(t, db, id, "phone", "token-"+id)
	}
	seedRoom(t, db, "r1", "Crowd", "alice", "bob", "carol", "dave", "erin")
	require.NoError(t, db.SetRoomNotifications(context.Background(), "r1", "dave", false))

	sender := &fakeSender{}
	d := newTestDispatcher(t, db, sender)

	outcome, err := d.Dispatch(context.Background(), "r1", models.MessageSummary{Text: "hi", SenderID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Recipients)

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"token-erin"}, calls[0].Tokens)
}

func TestDispatcher_QuietHoursUseConfiguredTimezone(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "bob", models.NotificationPreferences{Enabled: true, QuietHoursStart: "22:00", QuietHoursEnd: "07:00"})
	seedDevice(t, db, "bob", "phone", "token-bob")
	seedRoom(t, db, "r1", "Pair", "alice", "bob")

	sender := &fakeSender{}
	d, err := NewDispatcher(db, sender, models.NotificationsConfig{Timezone: "Asia/Tokyo"}, testLogger())
	require.NoError(t, err)
	// 14:00 UTC is 23:00 in Tokyo.
	d.now = fixedClock(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC))

	outcome, err := d.Dispatch(context.Background(), "r1", models.MessageSummary{Text: "hi", SenderID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Recipients)
	assert.Empty(t, sender.Calls())
}

func TestDispatcher_NoTokensIsNoop(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "bob", enabled)
	seedRoom(t, db, "r1", "", "alice", "bob")

	sender := &fakeSender{}
	d := newTestDispatcher(t, db, sender)

	outcome, err := d.Dispatch(context.Background(), "r1", models.MessageSummary{Text: "hi", SenderID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Recipients)
	assert.Equal(t, 0, outcome.Attempted)
	assert.Empty(t, sender.Calls())
}

func TestDispatcher_DefaultTitleAndTruncatedBody(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "bob", enabled)
	seedDevice(t, db, "bob", "phone", "token-bob")
	seedRoom(t, db, "r1", "", "alice", "bob")

	sender := &fakeSender{}
	d := newTestDispatcher(t, db, sender)

	_, err := d.Dispatch(context.Background(), "r1", models.MessageSummary{Text: strings.Repeat("x", 150), SenderID: "alice"})
	require.NoError(t, err)

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "New Message", calls[0].Notification.Title)
	assert.Len(t, calls[0].Notification.Body, 100)
	assert.True(t, strings.HasSuffix(calls[0].Notification.Body, "..."))
}

func TestDispatcher_RoomNotFound(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db, &fakeSender{})

	_, err := d.Dispatch(context.Background(), "missing", models.MessageSummary{SenderID: "alice"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestDispatcher_TransportErrorReturned(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", enabled)
	seedUser(t, db, "bob", enabled)
	seedDevice(t, db, "bob", "phone", "token-bob")
	seedRoom(t, db, "r1", "Pair", "alice", "bob")

	sender := &fakeSender{err: errors.New("connection refused")}
	d := newTestDispatcher(t, db, sender)

	_, err := d.Dispatch(context.Background(), "r1", models.MessageSummary{Text: "hi", SenderID: "alice"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePushTransport, apperrors.GetCode(err))
}

func TestNewDispatcher_InvalidTimezone(t *testing.T) {
	_, err := NewDispatcher(nil, &fakeSender{}, models.NotificationsConfig{Timezone: "Mars/Olympus"}, testLogger())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidConfig, apperrors.GetCode(err))
}
