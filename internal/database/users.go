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

// PurgeReport counts the rows removed by PurgeUser.
type PurgeReport struct {
	Devices       int64
	Memberships   int64
	Typing        int64
	ReadReceipts  int64
	Notifications int64
	Reports       int64
	RateLimits    int64
	Profile       int64
}

// GetUser returns the user or nil when absent.
func (d *Database) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var (
		u                                          models.User
		status                                     string
		startedAt, updatedAt, cancelledAt, expired sql.NullInt64
		notificationsEnabled, suspended            int
		suspendedAt, lastSeen                      sql.NullInt64
		createdAt                                  int64
	)
	err := d.db.QueryRowContext(ctx, selectUserQuery, userID).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL,
		&status, &u.SubscriptionPlan,
		&startedAt, &updatedAt, &cancelledAt, &expired,
		&notificationsEnabled, &u.NotificationPreferences.QuietHoursStart, &u.NotificationPreferences.QuietHoursEnd,
		&suspended, &suspendedAt, &u.SuspendReason,
		&createdAt, &lastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.SubscriptionStatus = models.SubscriptionStatus(status)
	u.SubscriptionStartedAt = timePtr(startedAt)
	u.SubscriptionUpdatedAt = timePtr(updatedAt)
	u.SubscriptionCancelledAt = timePtr(cancelledAt)
	u.SubscriptionExpiredAt = timePtr(expired)
	u.NotificationPreferences.Enabled = notificationsEnabled == 1
	u.Suspended = suspended == 1
	u.SuspendedAt = timePtr(suspendedAt)
	u.CreatedAt = fromMillis(createdAt)
	u.LastSeen = timePtr(lastSeen)
	return &u, nil
}

// CreateUser inserts the profile and the onUserCreate marker for eventID in
// one transaction. An existing profile is left untouched. Returns
// ErrAlreadyProcessed when eventID was seen before.
func (d *Database) CreateUser(ctx context.Context, eventID string, u *models.User) error {
	return d.RunInTx(ctx, "create user", func(tx *sql.Tx) error {
		if err := insertMarker(ctx, tx, eventID, constants.FunctionOnUserCreate, u.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, insertUserQuery,
			u.ID, u.Email, u.DisplayName, u.PhotoURL, string(u.SubscriptionStatus),
			boolToInt(u.NotificationPreferences.Enabled),
			u.NotificationPreferences.QuietHoursStart, u.NotificationPreferences.QuietHoursEnd,
			toMillis(u.CreatedAt), nullMillis(u.LastSeen))
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// PurgeUser deletes every row owned by or referencing userID, decrementing
// the member count of each room the user belonged to, and writes the
// onUserDelete marker, all in one transaction.
func (d *Database) PurgeUser(ctx context.Context, eventID, userID string, now time.Time) (*PurgeReport, error) {
	var report *PurgeReport
	err := d.RunInTx(ctx, "purge user", func(tx *sql.Tx) error {
		report = &PurgeReport{}
		if err := insertMarker(ctx, tx, eventID, constants.FunctionOnUserDelete, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE rooms
			SET member_count = MAX(member_count - 1, 0), updated_at = ?
			WHERE id IN (SELECT room_id FROM room_members WHERE user_id = ?)`,
			toMillis(now), userID); err != nil {
			return fmt.Errorf("failed to decrement member counts: %w", err)
		}

		steps := []struct {
			query string
			count *int64
			args  []interface{}
		}{
			{`DELETE FROM devices WHERE user_id = ?`, &report.Devices, []interface{}{userID}},
			{`DELETE FROM room_members WHERE user_id = ?`, &report.Memberships, []interface{}{userID}},
			{`DELETE FROM user_rooms WHERE user_id = ?`, nil, []interface{}{userID}},
			{`DELETE FROM typing_indicators WHERE user_id = ?`, &report.Typing, []interface{}{userID}},
			{`DELETE FROM read_receipts WHERE user_id = ?`, &report.ReadReceipts, []interface{}{userID}},
			{`DELETE FROM notifications WHERE user_id = ?`, &report.Notifications, []interface{}{userID}},
			{`DELETE FROM user_reports WHERE reporter_id = ? OR reported_user_id = ?`, &report.Reports, []interface{}{userID, userID}},
			{`DELETE FROM rate_limits WHERE user_id = ?`, &report.RateLimits, []interface{}{userID}},
			{`DELETE FROM users WHERE id = ?`, &report.Profile, []interface{}{userID}},
		}
		for _, step := range steps {
			res, err := tx.ExecContext(ctx, step.query, step.args...)
			if err != nil {
				return fmt.Errorf("failed to purge user data: %w", err)
			}
			if step.count != nil {
				*step.count, _ = res.RowsAffected()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// UpdateSubscription applies the non-nil fields of update. found is false
// when the user does not exist.
func (d *Database) UpdateSubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) (found bool, err error) {
	set := "subscription_updated_at = ?"
	args := []interface{}{toMillis(update.UpdatedAt)}
	if update.Status != nil {
		set += ", subscription_status = ?"
		args = append(args, string(*update.Status))
	}
	if update.Plan != nil {
		set += ", subscription_plan = ?"
		args = append(args, *update.Plan)
	}
	if update.StartedAt != nil {
		set += ", subscription_started_at = ?"
		args = append(args, toMillis(*update.StartedAt))
	}
	if update.CancelledAt != nil {
		set += ", subscription_cancelled_at = ?"
		args = append(args, toMillis(*update.CancelledAt))
	}
	if update.ExpiredAt != nil {
		set += ", subscription_expired_at = ?"
		args = append(args, toMillis(*update.ExpiredAt))
	}
	args = append(args, userID)

	err = withLockRetry(ctx, func() error {
		res, err := d.db.ExecContext(ctx, "UPDATE users SET "+set+" WHERE id = ?", args...) // #nosec G202 - column list is fixed
		if err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		n, _ := res.RowsAffected()
		found = n > 0
		return nil
	}, "update subscription")
	return found, err
}

// UpdateNotificationPreferences replaces the user's push preferences.
func (d *Database) UpdateNotificationPreferences(ctx context.Context, userID string, prefs models.NotificationPreferences) error {
	return withLockRetry(ctx, func() error {
		res, err := d.db.ExecContext(ctx, `
			UPDATE users
			SET notifications_enabled = ?, quiet_hours_start = ?, quiet_hours_end = ?
			WHERE id = ?`,
			boolToInt(prefs.Enabled), prefs.QuietHoursStart, prefs.QuietHoursEnd, userID)
		if err != nil {
			return fmt.Errorf("failed to update notification preferences: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NewNotFoundError("user", userID)
		}
		return nil
	}, "update notification preferences")
}

// SetSuspended flags or clears a user's suspension.
func (d *Database) SetSuspended(ctx context.Context, userID string, suspended bool, reason string, now time.Time) error {
	var suspendedAt sql.NullInt64
	if suspended {
		suspendedAt = sql.NullInt64{Int64: toMillis(now), Valid: true}
	}
	return withLockRetry(ctx, func() error {
		res, err := d.db.ExecContext(ctx,
			`UPDATE users SET suspended = ?, suspended_at = ?, suspend_reason = ? WHERE id = ?`,
			boolToInt(suspended), suspendedAt, reason, userID)
		if err != nil {
			return fmt.Errorf("failed to update suspension: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NewNotFoundError("user", userID)
		}
		return nil
	}, "set suspended")
}
