package database

import (
	"context"
	"encoding/json"
	"fmt"

	"raine/internal/models"
)

// InsertNotification stores an in-app inbox entry.
func (d *Database) InsertNotification(ctx context.Context, n *models.Notification) error {
	data := n.Data
	if data == nil {
		data = map[string]string{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}
	return withLockRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO notifications (id, user_id, type, title, body, data, read, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.UserID, string(n.Type), n.Title, n.Body, string(encoded), boolToInt(n.Read), toMillis(n.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		return nil
	}, "insert notification")
}

// ListNotifications returns the user's newest notifications first.
func (d *Database) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, body, data, read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var (
			n         models.Notification
			typ, data string
			read      int
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &data, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return nil, fmt.Errorf("failed to decode notification data: %w", err)
		}
		n.Type = models.NotificationType(typ)
		n.Read = read == 1
		n.CreatedAt = fromMillis(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// InsertReport stores a user report.
func (d *Database) InsertReport(ctx context.Context, r *models.UserReport) error {
	return withLockRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO user_reports (id, reporter_id, reported_user_id, reason, description, message_id, room_id, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.ReporterID, r.ReportedUserID, r.Reason, r.Description, r.MessageID, r.RoomID,
			string(r.Status), toMillis(r.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert report: %w", err)
		}
		return nil
	}, "insert report")
}
