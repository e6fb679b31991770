package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"raine/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLockRetry_Success(t *testing.T) {
	callCount := 0
	err := withLockRetry(context.Background(), func() error {
		callCount++
		return nil
	}, "test operation")

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestWithLockRetry_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := withLockRetry(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("database is locked")
		}
		return nil
	}, "test operation")

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestWithLockRetry_NonRetryableError(t *testing.T) {
	sentinel := errors.New("UNIQUE constraint failed")
	callCount := 0
	err := withLockRetry(context.Background(), func() error {
		callCount++
		return sentinel
	}, "test operation")

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, callCount)
}

func TestWithLockRetry_MaxAttemptsReached(t *testing.T) {
	callCount := 0
	err := withLockRetry(context.Background(), func() error {
		callCount++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	}, "busy operation")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "busy operation failed after 3 attempts")
	assert.Equal(t, 3, callCount)
}

func TestWithLockRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := withLockRetry(ctx, func() error {
		return errors.New("database is locked")
	}, "slow operation")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryableDBError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"locked text", errors.New("database is locked"), true},
		{"io text", errors.New("disk I/O error"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"schema", errors.New("no such table: rooms"), false},
		{"not processed", ErrAlreadyProcessed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryableDBError(tt.err))
		})
	}
}

func TestDeleteRetries_BusyCommitCountsOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, db.EnqueueRetry(ctx, &models.NotificationRetry{
			ID: id, RoomID: "r1", MessageID: "m-" + id,
			Message: models.MessageSummary{Text: "hi", SenderID: "alice", Timestamp: testNow},
			Error:   "boom", CreatedAt: testNow,
		}))
	}

	commits := 0
	commitTx = func(tx *sql.Tx) error {
		commits++
		if commits == 1 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return tx.Commit()
	}
	t.Cleanup(func() { commitTx = (*sql.Tx).Commit })

	deleted, err := db.DeleteRetries(ctx, []string{"a", "b"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, commits)
	assert.Equal(t, 2, deleted)

	count, err := db.CountRetries(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
