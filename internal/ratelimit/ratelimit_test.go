package ratelimit

import (
	"context"
	stderrors "errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"raine/internal/database"
	"raine/internal/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupLimiter(t *testing.T) (*Limiter, *database.Database, *fakeClock) {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "ratelimit.db"), database.Options{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := &fakeClock{now: baseTime}
	limiter := NewLimiter(db, logger)
	limiter.now = clock.Now
	return limiter, db, clock
}

func TestEvaluate(t *testing.T) {
	policy := Policy{MaxRequests: 3, Window: 10 * time.Second}
	now := baseTime
	nowMs := now.UnixMilli()

	tests := []struct {
		name          string
		stored        []int64
		wantAllowed   bool
		wantRemaining int
		wantResetAt   time.Time
		wantNext      []int64
	}{
		{
			name:          "empty history admits",
			stored:        nil,
			wantAllowed:   true,
			wantRemaining: 2,
			wantResetAt:   now.Add(10 * time.Second),
			wantNext:      []int64{nowMs},
		},
		{
			name:          "expired entries are dropped",
			stored:        []int64{nowMs - 20000, nowMs - 10000, nowMs - 5000},
			wantAllowed:   true,
			wantRemaining: 1,
			wantResetAt:   now.Add(10 * time.Second),
			wantNext:      []int64{nowMs - 5000, nowMs},
		},
		{
			name:          "full window rejects with oldest survivor reset",
			stored:        []int64{nowMs - 9000, nowMs - 4000, nowMs - 1000},
			wantAllowed:   false,
			wantRemaining: 0,
			wantResetAt:   now.Add(time.Second),
		},
		{
			name:          "entry exactly at window start no longer counts",
			stored:        []int64{nowMs - 10000, nowMs - 4000, nowMs - 1000},
			wantAllowed:   true,
			wantRemaining: 0,
			wantResetAt:   now.Add(10 * time.Second),
			wantNext:      []int64{nowMs - 4000, nowMs - 1000, nowMs},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, res := Evaluate(tt.stored, now, policy)
			assert.Equal(t, tt.wantAllowed, res.Allowed)
			assert.Equal(t, tt.wantRemaining, res.Remaining)
			assert.True(t, tt.wantResetAt.Equal(res.ResetAt), "resetAt %v, want %v", res.ResetAt, tt.wantResetAt)
			if tt.wantAllowed {
				assert.Equal(t, tt.wantNext, next)
			}
		})
	}
}

func TestCheckAndConsume_MessageSendWindow(t *testing.T) {
	limiter, _, clock := setupLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 30; i++ {
		res, err := limiter.CheckAndConsume(ctx, "alice", ActionMessageSend)
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d should be admitted", i)
		assert.Equal(t, 30-i, res.Remaining)
		clock.Advance(time.Second)
	}

	res, err := limiter.CheckAndConsume(ctx, "alice", ActionMessageSend)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "31st request inside the window is rejected")
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, baseTime.Add(60*time.Second).Equal(res.ResetAt))

	// Exactly one window after the first admission, that admission has left.
	clock.Advance(res.ResetAt.Sub(clock.Now()))
	require.True(t, baseTime.Add(60*time.Second).Equal(clock.Now()))
	res, err = limiter.CheckAndConsume(ctx, "alice", ActionMessageSend)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckAndConsume_RejectionDoesNotRecord(t *testing.T) {
	limiter, db, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.CheckAndConsume(ctx, "bob", ActionReportUser)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		res, err := limiter.CheckAndConsume(ctx, "bob", ActionReportUser)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	}

	rec, err := db.GetRateLimit(ctx, "bob", ActionReportUser)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Timestamps, 5)
	assert.Equal(t, "bob_report_user", rec.Key)
}

func TestCheckAndConsume_KeysAreIndependent(t *testing.T) {
	limiter, _, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := limiter.CheckAndConsume(ctx, "carol", ActionTypingStatus)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := limiter.CheckAndConsume(ctx, "carol", ActionTypingStatus)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = limiter.CheckAndConsume(ctx, "carol", ActionRoomCreate)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other actions have their own window")

	res, err = limiter.CheckAndConsume(ctx, "dave", ActionTypingStatus)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other users have their own window")
}

func TestCheckAndConsume_UnknownAction(t *testing.T) {
	limiter, _, _ := setupLimiter(t)

	res, err := limiter.CheckAndConsume(context.Background(), "alice", "launch_rockets")
	assert.Nil(t, res)
	assert.True(t, stderrors.Is(err, ErrUnknownAction))
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestCheckAndConsume_ConcurrentNeverExceedsLimit(t *testing.T) {
	limiter, db, _ := setupLimiter(t)
	ctx := context.Background()

	const callers = 40
	var wg sync.WaitGroup
	var admitted atomic.Int32
	var failures atomic.Int32

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.CheckAndConsume(ctx, "eve", ActionMessageSend)
			if err != nil {
				failures.Add(1)
				return
			}
			if res.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Zero(t, failures.Load())
	assert.Equal(t, int32(30), admitted.Load())

	rec, err := db.GetRateLimit(ctx, "eve", ActionMessageSend)
	require.NoError(t, err)
	assert.Len(t, rec.Timestamps, 30)
}

func TestLimit(t *testing.T) {
	limiter, _, _ := setupLimiter(t)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Limit(ctx, "frank", ActionRoomCreate, func() error {
			calls++
			return nil
		}))
	}

	err := limiter.Limit(ctx, "frank", ActionRoomCreate, func() error {
		calls++
		return nil
	})
	assert.Equal(t, 10, calls)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRateLimited))

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, baseTime.Add(time.Hour).Format(time.RFC3339), appErr.Context["reset_at"])

	inner := stderrors.New("handler failed")
	err = limiter.Limit(ctx, "grace", ActionRoomCreate, func() error { return inner })
	assert.ErrorIs(t, err, inner)
}
