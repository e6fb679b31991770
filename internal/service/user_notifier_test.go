package service

import (
	"context"
	"errors"
	"testing"

	"raine/internal/models"
	"raine/pkg/push"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserNotifier_StoresAndPushesToAllDevices(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "bob", models.NotificationPreferences{Enabled: true, QuietHoursStart: "00:00", QuietHoursEnd: "23:59"})
	seedDevice(t, db, "bob", "phone", "token-phone")
	seedDevice(t, db, "bob", "tablet", "token-tablet")

	sender := &fakeSender{failures: map[string]*push.SendError{
		"token-tablet": {Code: push.CodeInvalidRegistrationToken},
	}}
	n := NewUserNotifier(db, sender, testLogger())
	n.now = fixedClock(testNow)

	note := models.UserNotification{
		Type:  models.NotificationBillingIssue,
		Title: BillingIssueTitle,
		Body:  BillingIssueBody,
		Data:  map[string]string{"type": "billing_issue", "action": "update_payment"},
	}
	require.NoError(t, n.Notify(ctx, "bob", note))

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []string{"token-phone", "token-tablet"}, calls[0].Tokens)
	assert.Equal(t, "Payment Issue", calls[0].Notification.Title)
	assert.Equal(t, note.Data, calls[0].Data)

	inbox, err := db.ListNotifications(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationBillingIssue, inbox[0].Type)
	assert.Equal(t, BillingIssueBody, inbox[0].Body)
	assert.False(t, inbox[0].Read)

	devices, err := db.ListDevices(ctx, []string{"bob"})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "phone", devices[0].DeviceID)
}

func TestUserNotifier_NoDevicesStillStoresInbox(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "bob", enabled)
	sender := &fakeSender{}

	n := NewUserNotifier(db, sender, testLogger())
	require.NoError(t, n.Notify(context.Background(), "bob", models.UserNotification{Type: models.NotificationSystem, Title: "Hi"}))
	assert.Empty(t, sender.Calls())

	inbox, err := db.ListNotifications(context.Background(), "bob", 10)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestUserNotifier_TransportErrorReturned(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "bob", enabled)
	seedDevice(t, db, "bob", "phone", "token-phone")

	n := NewUserNotifier(db, &fakeSender{err: errors.New("unavailable")}, testLogger())
	assert.Error(t, n.Notify(context.Background(), "bob", models.UserNotification{Type: models.NotificationSystem}))
}
