package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"raine/internal/constants"
	"raine/internal/retry"

	"github.com/mattn/go-sqlite3"
)

// lockBackoff paces retries of operations that hit SQLITE_BUSY or
// SQLITE_LOCKED while another connection holds the write lock.
var lockBackoff = retry.BackoffConfig{
	InitialDelay: time.Duration(constants.DefaultBackoffInitialMs) * time.Millisecond,
	MaxDelay:     time.Duration(constants.DefaultBackoffMaxSec) * time.Second,
	Multiplier:   2.0,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
}

// withLockRetry runs operation until it succeeds or fails with an error
// other than lock contention. Non-retryable errors are returned unchanged so
// callers can match sentinels and AppErrors.
func withLockRetry(ctx context.Context, operation func() error, operationName string) error {
	attempts := 0
	err := retry.NewBackoff(lockBackoff).RetryWithPredicate(ctx, func() error {
		attempts++
		return operation()
	}, isRetryableDBError)

	if err != nil && isRetryableDBError(err) {
		return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, err)
	}
	return err
}

func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "disk I/O error")
}
