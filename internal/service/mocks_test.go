package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"raine/internal/database"
	"raine/internal/models"
	"raine/pkg/push"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "service.db"), database.Options{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, db *database.Database, id string, prefs models.NotificationPreferences) {
	t.Helper()
	err := db.CreateUser(context.Background(), "create-"+id, &models.User{
		ID:                      id,
		Email:                   id + "@example.com",
		DisplayName:             id,
		SubscriptionStatus:      models.SubscriptionFree,
		NotificationPreferences: prefs,
		CreatedAt:               testNow,
		LastSeen:                &testNow,
	})
	require.NoError(t, err)
}

func seedRoom(t *testing.T, db *database.Database, roomID, name, creator string, members ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.CreateRoom(ctx, &models.Room{ID: roomID, Name: name, CreatedAt: testNow}, creator))
	for _, m := range members {
		joined, err := db.JoinRoom(ctx, roomID, m, testNow)
		require.NoError(t, err)
		require.True(t, joined)
	}
}

func seedDevice(t *testing.T, db *database.Database, userID, deviceID, token string) {
	t.Helper()
	require.NoError(t, db.UpsertDevice(context.Background(), &models.Device{
		UserID:     userID,
		DeviceID:   deviceID,
		PushToken:  token,
		Platform:   models.PlatformAndroid,
		LastActive: testNow,
	}))
}

var enabled = models.NotificationPreferences{Enabled: true}

// fakeSender records every multicast and fails the tokens listed in failures.
type fakeSender struct {
	mu       sync.Mutex
	calls    []*push.MulticastMessage
	failures map[string]*push.SendError
	err      error
}

func (f *fakeSender) SendEachForMulticast(_ context.Context, msg *push.MulticastMessage) (*push.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}

	resp := &push.BatchResponse{Responses: make([]push.SendResponse, len(msg.Tokens))}
	for i, token := range msg.Tokens {
		if sendErr, ok := f.failures[token]; ok {
			resp.Responses[i] = push.SendResponse{Error: sendErr}
			resp.FailureCount++
			continue
		}
		resp.Responses[i] = push.SendResponse{Success: true, MessageID: "msg-" + token}
		resp.SuccessCount++
	}
	return resp, nil
}

func (f *fakeSender) Calls() []*push.MulticastMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*push.MulticastMessage(nil), f.calls...)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Dispatch(ctx context.Context, roomID string, msg models.MessageSummary) (*DispatchOutcome, error) {
	args := m.Called(ctx, roomID, msg)
	outcome, _ := args.Get(0).(*DispatchOutcome)
	return outcome, args.Error(1)
}

type mockUserMessenger struct {
	mock.Mock
}

func (m *mockUserMessenger) Notify(ctx context.Context, userID string, n models.UserNotification) error {
	args := m.Called(ctx, userID, n)
	return args.Error(0)
}

type mockMessageHandler struct {
	mock.Mock
}

func (m *mockMessageHandler) HandleMessageCreated(ctx context.Context, event models.MessageCreatedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockSweepStore struct {
	mock.Mock
}

func (m *mockSweepStore) DeleteStaleDevices(ctx context.Context, before time.Time, chunkSize int) (int, error) {
	args := m.Called(ctx, before, chunkSize)
	return args.Int(0), args.Error(1)
}

func (m *mockSweepStore) DeleteProcessedEventsBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	args := m.Called(ctx, before, limit)
	return args.Int(0), args.Error(1)
}

func (m *mockSweepStore) DeleteProcessedWebhooksBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	args := m.Called(ctx, before, limit)
	return args.Int(0), args.Error(1)
}

func (m *mockSweepStore) DeleteRateLimitsBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	args := m.Called(ctx, before, limit)
	return args.Int(0), args.Error(1)
}

func (m *mockSweepStore) DeleteTypingBefore(ctx context.Context, before time.Time) (int, error) {
	args := m.Called(ctx, before)
	return args.Int(0), args.Error(1)
}

// allowAll admits every request.
type allowAll struct{}

func (allowAll) Limit(_ context.Context, _, _ string, fn func() error) error {
	return fn()
}
