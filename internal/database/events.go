package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"raine/internal/constants"
	apperrors "raine/internal/errors"
	"raine/internal/models"
)

// IsEventProcessed reports whether a marker exists for eventID.
func (d *Database) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, selectProcessedEventQuery, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return true, nil
}

// CommitMessageEvent records the onMessageCreated marker, the room's last
// message and the sender's lastSeen in one transaction. A missing room or
// sender aborts the transaction with a NOT_FOUND error so the delivery can
// be retried; a duplicate eventID yields ErrAlreadyProcessed.
func (d *Database) CommitMessageEvent(ctx context.Context, eventID, roomID string, msg models.MessageSummary, now time.Time) error {
	return d.RunInTx(ctx, "commit message event", func(tx *sql.Tx) error {
		if err := insertMarker(ctx, tx, eventID, constants.FunctionOnMessageCreated, now); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, updateRoomLastMessageQuery,
			msg.Text, msg.SenderID, toMillis(msg.Timestamp), toMillis(now), roomID)
		if err != nil {
			return fmt.Errorf("failed to update room last message: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NewNotFoundError("room", roomID)
		}

		res, err = tx.ExecContext(ctx, updateUserLastSeenQuery, toMillis(now), msg.SenderID)
		if err != nil {
			return fmt.Errorf("failed to update sender last seen: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NewNotFoundError("user", msg.SenderID)
		}
		return nil
	})
}

// IsWebhookProcessed reports whether the billing event was already handled.
func (d *Database) IsWebhookProcessed(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, selectProcessedWebhookQuery, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed webhook: %w", err)
	}
	return true, nil
}

// MarkWebhookProcessed writes the webhook marker. Writing it twice is a no-op.
func (d *Database) MarkWebhookProcessed(ctx context.Context, hook *models.ProcessedWebhook) error {
	return withLockRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertProcessedWebhookQuery,
			hook.EventID, hook.EventType, hook.UserID, toMillis(hook.ProcessedAt))
		if err != nil {
			return fmt.Errorf("failed to mark webhook processed: %w", err)
		}
		return nil
	}, "mark webhook processed")
}
