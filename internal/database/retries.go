package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"raine/internal/models"
)

// EnqueueRetry persists a failed dispatch.
func (d *Database) EnqueueRetry(ctx context.Context, r *models.NotificationRetry) error {
	msg, err := json.Marshal(r.Message)
	if err != nil {
		return fmt.Errorf("failed to encode retry message: %w", err)
	}
	return withLockRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertRetryQuery,
			r.ID, r.RoomID, r.MessageID, string(msg), r.Error, r.RetryCount,
			r.LastError, nullMillis(r.LastRetryAt), toMillis(r.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to enqueue retry: %w", err)
		}
		return nil
	}, "enqueue retry")
}

// ListRetries returns up to limit queued retries, oldest first.
func (d *Database) ListRetries(ctx context.Context, limit int) ([]models.NotificationRetry, error) {
	rows, err := d.db.QueryContext(ctx, selectRetriesQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retries: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationRetry
	for rows.Next() {
		r, err := scanRetry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate retries: %w", err)
	}
	return out, nil
}

func scanRetry(row rowScanner, extra ...interface{}) (*models.NotificationRetry, error) {
	var (
		r           models.NotificationRetry
		msg         string
		lastRetryAt sql.NullInt64
		createdAt   int64
	)
	dest := []interface{}{&r.ID, &r.RoomID, &r.MessageID, &msg, &r.Error, &r.RetryCount,
		&r.LastError, &lastRetryAt, &createdAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, fmt.Errorf("failed to scan retry: %w", err)
	}
	if err := json.Unmarshal([]byte(msg), &r.Message); err != nil {
		return nil, fmt.Errorf("failed to decode retry message: %w", err)
	}
	r.LastRetryAt = timePtr(lastRetryAt)
	r.CreatedAt = fromMillis(createdAt)
	return &r, nil
}

// MarkRetryFailed bumps retryCount and records the latest failure.
func (d *Database) MarkRetryFailed(ctx context.Context, id, lastError string, now time.Time) error {
	return withLockRetry(ctx, func() error {
		if _, err := d.db.ExecContext(ctx, updateRetryFailedQuery, lastError, toMillis(now), id); err != nil {
			return fmt.Errorf("failed to update retry: %w", err)
		}
		return nil
	}, "mark retry failed")
}

// AddDeadLetter copies an exhausted retry into the dead-letter table.
func (d *Database) AddDeadLetter(ctx context.Context, r *models.NotificationRetry, reason string, now time.Time) error {
	msg, err := json.Marshal(r.Message)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter message: %w", err)
	}
	return withLockRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertDeadLetterQuery,
			r.ID, r.RoomID, r.MessageID, string(msg), r.Error, r.RetryCount,
			r.LastError, nullMillis(r.LastRetryAt), toMillis(r.CreatedAt), reason, toMillis(now))
		if err != nil {
			return fmt.Errorf("failed to write dead letter: %w", err)
		}
		return nil
	}, "add dead letter")
}

// ListDeadLetters returns up to limit dead letters, oldest first.
func (d *Database) ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	rows, err := d.db.QueryContext(ctx, selectDeadLettersQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []models.DeadLetter
	for rows.Next() {
		var (
			reason  string
			movedAt int64
		)
		r, err := scanRetry(rows, &reason, &movedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, models.DeadLetter{NotificationRetry: *r, Reason: reason, MovedAt: fromMillis(movedAt)})
	}
	return out, rows.Err()
}

// DeleteRetries removes the given retry records in transactions of at most
// chunkSize rows.
func (d *Database) DeleteRetries(ctx context.Context, ids []string, chunkSize int) (int, error) {
	deleted := 0
	err := chunk(len(ids), chunkSize, func(start, end int) error {
		part := ids[start:end]
		args := make([]interface{}, len(part))
		for i, id := range part {
			args[i] = id
		}
		var n int64
		err := d.RunInTx(ctx, "delete retries", func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx,
				"DELETE FROM notification_retries WHERE id IN ("+placeholders(len(part))+")", args...) // #nosec G202 - placeholders only
			if err != nil {
				return fmt.Errorf("failed to delete retries: %w", err)
			}
			n, _ = res.RowsAffected()
			return nil
		})
		if err != nil {
			return err
		}
		deleted += int(n)
		return nil
	})
	return deleted, err
}

// CountRetries returns the number of queued retries.
func (d *Database) CountRetries(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_retries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count retries: %w", err)
	}
	return n, nil
}
