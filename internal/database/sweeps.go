package database

import (
	"context"
	"fmt"
	"time"
)

func (d *Database) deleteBefore(ctx context.Context, name, query string, args ...interface{}) (int, error) {
	var deleted int64
	err := withLockRetry(ctx, func() error {
		res, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to %s: %w", name, err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	}, name)
	return int(deleted), err
}

// DeleteProcessedEventsBefore removes at most limit event markers older than before.
func (d *Database) DeleteProcessedEventsBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	return d.deleteBefore(ctx, "delete processed events", deleteProcessedEventsQuery, toMillis(before), limit)
}

// DeleteProcessedWebhooksBefore removes at most limit webhook markers older than before.
func (d *Database) DeleteProcessedWebhooksBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	return d.deleteBefore(ctx, "delete processed webhooks", deleteProcessedWebhooksQuery, toMillis(before), limit)
}

// DeleteRateLimitsBefore removes at most limit rate-limit records not updated since before.
func (d *Database) DeleteRateLimitsBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	return d.deleteBefore(ctx, "delete rate limits", deleteRateLimitsQuery, toMillis(before), limit)
}

// DeleteTypingBefore removes every typing indicator not refreshed since before.
func (d *Database) DeleteTypingBefore(ctx context.Context, before time.Time) (int, error) {
	return d.deleteBefore(ctx, "delete typing indicators", deleteStaleTypingQuery, toMillis(before))
}
