package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "raine/internal/errors"
	"raine/internal/models"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		room                 models.Room
		lastText, lastSender sql.NullString
		lastAt               sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&room.ID, &room.Name, &room.PhotoURL, &room.MemberCount,
		&lastText, &lastSender, &lastAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	room.CreatedAt = fromMillis(createdAt)
	room.UpdatedAt = fromMillis(updatedAt)
	if lastAt.Valid {
		room.LastMessage = &models.LastMessage{
			Text:      lastText.String,
			SenderID:  lastSender.String,
			Timestamp: fromMillis(lastAt.Int64),
		}
	}
	return &room, nil
}

func scanRoomMember(row rowScanner) (*models.RoomMember, error) {
	var (
		m        models.RoomMember
		role     string
		joinedAt int64
		lastRead sql.NullInt64
		enabled  int
	)
	if err := row.Scan(&m.RoomID, &m.UserID, &role, &joinedAt, &lastRead, &enabled); err != nil {
		return nil, err
	}
	m.Role = models.MemberRole(role)
	m.JoinedAt = fromMillis(joinedAt)
	m.LastRead = timePtr(lastRead)
	m.NotificationsEnabled = enabled == 1
	return &m, nil
}

// GetRoom returns the room or nil when it does not exist.
func (d *Database) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := scanRoom(d.db.QueryRowContext(ctx, selectRoomQuery, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// ListRoomMembers returns every member row of the room.
func (d *Database) ListRoomMembers(ctx context.Context, roomID string) ([]models.RoomMember, error) {
	rows, err := d.db.QueryContext(ctx, selectRoomMembersQuery, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room members: %w", err)
	}
	defer rows.Close()

	var members []models.RoomMember
	for rows.Next() {
		m, err := scanRoomMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room members: %w", err)
	}
	return members, nil
}

// GetRoomMember returns the membership or nil when userID is not a member.
func (d *Database) GetRoomMember(ctx context.Context, roomID, userID string) (*models.RoomMember, error) {
	m, err := scanRoomMember(d.db.QueryRowContext(ctx, selectRoomMemberQuery, roomID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room member: %w", err)
	}
	return m, nil
}

// CreateRoom inserts the room with creatorID as its only (admin) member.
func (d *Database) CreateRoom(ctx context.Context, room *models.Room, creatorID string) error {
	return d.RunInTx(ctx, "create room", func(tx *sql.Tx) error {
		created := toMillis(room.CreatedAt)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (id, name, photo_url, member_count, created_at, updated_at)
			VALUES (?, ?, ?, 1, ?, ?)`,
			room.ID, room.Name, room.PhotoURL, created, created); err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertRoomMemberQuery, room.ID, creatorID, string(models.RoleAdmin), created); err != nil {
			return fmt.Errorf("failed to insert room member: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertUserRoomQuery, creatorID, room.ID, created); err != nil {
			return fmt.Errorf("failed to insert user room: %w", err)
		}
		room.MemberCount = 1
		room.UpdatedAt = room.CreatedAt
		return nil
	})
}

// JoinRoom adds userID to the room. joined is false when the user was
// already a member.
func (d *Database) JoinRoom(ctx context.Context, roomID, userID string, now time.Time) (joined bool, err error) {
	err = d.RunInTx(ctx, "join room", func(tx *sql.Tx) error {
		joined = false
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE id = ?`, roomID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check room: %w", err)
		}
		if exists == 0 {
			return apperrors.NewNotFoundError("room", roomID)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO room_members (room_id, user_id, role, joined_at, notifications_enabled)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(room_id, user_id) DO NOTHING`,
			roomID, userID, string(models.RoleMember), toMillis(now))
		if err != nil {
			return fmt.Errorf("failed to insert room member: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, insertUserRoomQuery, userID, roomID, toMillis(now)); err != nil {
			return fmt.Errorf("failed to insert user room: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE rooms SET member_count = member_count + 1, updated_at = ? WHERE id = ?`,
			toMillis(now), roomID); err != nil {
			return fmt.Errorf("failed to increment member count: %w", err)
		}
		joined = true
		return nil
	})
	return joined, err
}

// LeaveRoom removes userID from the room. left is false when the user was
// not a member.
func (d *Database) LeaveRoom(ctx context.Context, roomID, userID string, now time.Time) (left bool, err error) {
	err = d.RunInTx(ctx, "leave room", func(tx *sql.Tx) error {
		left = false
		res, err := tx.ExecContext(ctx, `DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete room member: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM user_rooms WHERE user_id = ? AND room_id = ?`, userID, roomID); err != nil {
			return fmt.Errorf("failed to delete user room: %w", err)
		}
		if _, err := tx.ExecContext(ctx, deleteTypingQuery, roomID, userID); err != nil {
			return fmt.Errorf("failed to delete typing indicator: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE rooms SET member_count = MAX(member_count - 1, 0), updated_at = ? WHERE id = ?`,
			toMillis(now), roomID); err != nil {
			return fmt.Errorf("failed to decrement member count: %w", err)
		}
		left = true
		return nil
	})
	return left, err
}

// SetRoomNotifications mutes or unmutes the room for userID on both
// membership mirrors.
func (d *Database) SetRoomNotifications(ctx context.Context, roomID, userID string, enabled bool) error {
	return d.RunInTx(ctx, "set room notifications", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE room_members SET notifications_enabled = ? WHERE room_id = ? AND user_id = ?`,
			boolToInt(enabled), roomID, userID)
		if err != nil {
			return fmt.Errorf("failed to update room member: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NewNotFoundError("room member", roomID)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_rooms SET notifications_enabled = ? WHERE user_id = ? AND room_id = ?`,
			boolToInt(enabled), userID, roomID); err != nil {
			return fmt.Errorf("failed to update user room: %w", err)
		}
		return nil
	})
}

// MarkRead moves the lastRead cursor on both membership mirrors and, when
// messageID is set, records a read receipt for that message.
func (d *Database) MarkRead(ctx context.Context, roomID, userID, messageID string, now time.Time) error {
	return d.RunInTx(ctx, "mark read", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE room_members SET last_read = ? WHERE room_id = ? AND user_id = ?`,
			toMillis(now), roomID, userID)
		if err != nil {
			return fmt.Errorf("failed to update room member: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NewNotFoundError("room member", roomID)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_rooms (user_id, room_id, joined_at, last_read, notifications_enabled)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(user_id, room_id) DO UPDATE SET last_read = excluded.last_read`,
			userID, roomID, toMillis(now), toMillis(now)); err != nil {
			return fmt.Errorf("failed to update user room: %w", err)
		}

		if messageID != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO read_receipts (room_id, message_id, user_id, timestamp)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(room_id, message_id, user_id) DO UPDATE SET timestamp = excluded.timestamp`,
				roomID, messageID, userID, toMillis(now)); err != nil {
				return fmt.Errorf("failed to write read receipt: %w", err)
			}
		}
		return nil
	})
}

// GetUserRoom returns the user-side membership mirror or nil.
func (d *Database) GetUserRoom(ctx context.Context, userID, roomID string) (*models.RoomMembership, error) {
	var (
		m        models.RoomMembership
		joinedAt int64
		lastRead sql.NullInt64
		enabled  int
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT user_id, room_id, joined_at, last_read, notifications_enabled
		FROM user_rooms WHERE user_id = ? AND room_id = ?`, userID, roomID).
		Scan(&m.UserID, &m.RoomID, &joinedAt, &lastRead, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user room: %w", err)
	}
	m.JoinedAt = fromMillis(joinedAt)
	m.LastRead = timePtr(lastRead)
	m.NotificationsEnabled = enabled == 1
	return &m, nil
}

// InsertMessage stores a chat message.
func (d *Database) InsertMessage(ctx context.Context, msg *models.Message) error {
	reactions := msg.Reactions
	if reactions == nil {
		reactions = map[string][]string{}
	}
	encoded, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("failed to encode reactions: %w", err)
	}

	return withLockRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO messages (id, room_id, sender_id, text, timestamp, flagged, visible, reactions)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.RoomID, msg.SenderID, msg.Text, toMillis(msg.Timestamp),
			boolToInt(msg.Flagged), boolToInt(msg.Visible), string(encoded))
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	}, "insert message")
}

// SetTyping marks userID as typing in the room.
func (d *Database) SetTyping(ctx context.Context, roomID, userID string, now time.Time) error {
	return withLockRetry(ctx, func() error {
		if _, err := d.db.ExecContext(ctx, upsertTypingQuery, roomID, userID, toMillis(now)); err != nil {
			return fmt.Errorf("failed to set typing indicator: %w", err)
		}
		return nil
	}, "set typing")
}

// ClearTyping removes the typing indicator for userID.
func (d *Database) ClearTyping(ctx context.Context, roomID, userID string) error {
	return withLockRetry(ctx, func() error {
		if _, err := d.db.ExecContext(ctx, deleteTypingQuery, roomID, userID); err != nil {
			return fmt.Errorf("failed to clear typing indicator: %w", err)
		}
		return nil
	}, "clear typing")
}

// ListTyping returns the users currently marked as typing in the room.
func (d *Database) ListTyping(ctx context.Context, roomID string) ([]models.TypingIndicator, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT room_id, user_id, is_typing, updated_at
		FROM typing_indicators WHERE room_id = ? ORDER BY updated_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list typing indicators: %w", err)
	}
	defer rows.Close()

	var out []models.TypingIndicator
	for rows.Next() {
		var (
			ti        models.TypingIndicator
			isTyping  int
			updatedAt int64
		)
		if err := rows.Scan(&ti.RoomID, &ti.UserID, &isTyping, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan typing indicator: %w", err)
		}
		ti.IsTyping = isTyping == 1
		ti.UpdatedAt = fromMillis(updatedAt)
		out = append(out, ti)
	}
	return out, rows.Err()
}
