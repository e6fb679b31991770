package database

// Room queries
const (
	selectRoomQuery = `
		SELECT id, name, photo_url, member_count,
		       last_message_text, last_message_sender_id, last_message_at,
		       created_at, updated_at
		FROM rooms
		WHERE id = ?
	`

	selectRoomMembersQuery = `
		SELECT room_id, user_id, role, joined_at, last_read, notifications_enabled
		FROM room_members
		WHERE room_id = ?
		ORDER BY joined_at
	`

	selectRoomMemberQuery = `
		SELECT room_id, user_id, role, joined_at, last_read, notifications_enabled
		FROM room_members
		WHERE room_id = ? AND user_id = ?
	`

	insertRoomMemberQuery = `
		INSERT INTO room_members (room_id, user_id, role, joined_at, notifications_enabled)
		VALUES (?, ?, ?, ?, 1)
	`

	insertUserRoomQuery = `
		INSERT INTO user_rooms (user_id, room_id, joined_at, notifications_enabled)
		VALUES (?, ?, ?, 1)
	`

	updateRoomLastMessageQuery = `
		UPDATE rooms
		SET last_message_text = ?, last_message_sender_id = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`
)

// User queries
const (
	selectUserQuery = `
		SELECT id, email, display_name, photo_url,
		       subscription_status, subscription_plan,
		       subscription_started_at, subscription_updated_at,
		       subscription_cancelled_at, subscription_expired_at,
		       notifications_enabled, quiet_hours_start, quiet_hours_end,
		       suspended, suspended_at, suspend_reason,
		       created_at, last_seen
		FROM users
		WHERE id = ?
	`

	insertUserQuery = `
		INSERT INTO users (
			id, email, display_name, photo_url, subscription_status,
			notifications_enabled, quiet_hours_start, quiet_hours_end,
			created_at, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	updateUserLastSeenQuery = `
		UPDATE users SET last_seen = ? WHERE id = ?
	`
)

// Event marker queries
const (
	insertProcessedEventQuery = `
		INSERT INTO processed_events (event_id, function_name, processed_at)
		VALUES (?, ?, ?)
	`

	selectProcessedEventQuery = `
		SELECT 1 FROM processed_events WHERE event_id = ?
	`

	deleteProcessedEventsQuery = `
		DELETE FROM processed_events
		WHERE event_id IN (
			SELECT event_id FROM processed_events
			WHERE processed_at < ?
			ORDER BY processed_at
			LIMIT ?
		)
	`

	selectProcessedWebhookQuery = `
		SELECT 1 FROM processed_webhooks WHERE event_id = ?
	`

	insertProcessedWebhookQuery = `
		INSERT INTO processed_webhooks (event_id, event_type, user_id, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`

	deleteProcessedWebhooksQuery = `
		DELETE FROM processed_webhooks
		WHERE event_id IN (
			SELECT event_id FROM processed_webhooks
			WHERE processed_at < ?
			ORDER BY processed_at
			LIMIT ?
		)
	`
)

// Retry queue queries
const (
	insertRetryQuery = `
		INSERT INTO notification_retries (
			id, room_id, message_id, message, error, retry_count,
			last_error, last_retry_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectRetriesQuery = `
		SELECT id, room_id, message_id, message, error, retry_count,
		       last_error, last_retry_at, created_at
		FROM notification_retries
		ORDER BY created_at, id
		LIMIT ?
	`

	updateRetryFailedQuery = `
		UPDATE notification_retries
		SET retry_count = retry_count + 1, last_error = ?, last_retry_at = ?
		WHERE id = ?
	`

	insertDeadLetterQuery = `
		INSERT INTO dead_letters (
			id, room_id, message_id, message, error, retry_count,
			last_error, last_retry_at, created_at, reason, moved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	selectDeadLettersQuery = `
		SELECT id, room_id, message_id, message, error, retry_count,
		       last_error, last_retry_at, created_at, reason, moved_at
		FROM dead_letters
		ORDER BY moved_at
		LIMIT ?
	`
)

// Rate limit queries
const (
	selectRateLimitQuery = `
		SELECT key, user_id, action, timestamps, last_updated
		FROM rate_limits
		WHERE key = ?
	`

	upsertRateLimitQuery = `
		INSERT INTO rate_limits (key, user_id, action, timestamps, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			timestamps = excluded.timestamps,
			last_updated = excluded.last_updated
	`

	deleteRateLimitsQuery = `
		DELETE FROM rate_limits
		WHERE key IN (
			SELECT key FROM rate_limits
			WHERE last_updated < ?
			ORDER BY last_updated
			LIMIT ?
		)
	`
)

// Device queries
const (
	upsertDeviceQuery = `
		INSERT INTO devices (user_id, device_id, push_token, platform, last_active, app_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, device_id) DO UPDATE SET
			push_token = excluded.push_token,
			platform = excluded.platform,
			last_active = excluded.last_active,
			app_version = excluded.app_version
	`

	selectStaleDevicesQuery = `
		SELECT user_id, device_id
		FROM devices
		WHERE last_active < ?
		ORDER BY last_active
		LIMIT ?
	`

	deleteDeviceQuery = `
		DELETE FROM devices WHERE user_id = ? AND device_id = ?
	`
)

// Typing indicator queries
const (
	upsertTypingQuery = `
		INSERT INTO typing_indicators (room_id, user_id, is_typing, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET
			is_typing = 1,
			updated_at = excluded.updated_at
	`

	deleteTypingQuery = `
		DELETE FROM typing_indicators WHERE room_id = ? AND user_id = ?
	`

	deleteStaleTypingQuery = `
		DELETE FROM typing_indicators WHERE updated_at < ?
	`
)
