package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"raine/internal/models"
)

// RateLimitUpdate receives the stored timestamps (unix ms, oldest first) of
// a (user, action) pair and returns the list to persist. When write is
// false nothing is written.
type RateLimitUpdate func(timestamps []int64) (next []int64, write bool)

// UpdateRateLimit runs fn against the stored record inside one serializable
// transaction so concurrent callers observe each other's admissions.
func (d *Database) UpdateRateLimit(ctx context.Context, userID, action string, now time.Time, fn RateLimitUpdate) error {
	key := models.RateLimitKey(userID, action)
	return d.RunInTx(ctx, "update rate limit", func(tx *sql.Tx) error {
		var raw string
		var timestamps []int64
		err := tx.QueryRowContext(ctx, `SELECT timestamps FROM rate_limits WHERE key = ?`, key).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to read rate limit: %w", err)
		default:
			if err := json.Unmarshal([]byte(raw), &timestamps); err != nil {
				return fmt.Errorf("failed to decode rate limit timestamps: %w", err)
			}
		}

		next, write := fn(timestamps)
		if !write {
			return nil
		}
		if next == nil {
			next = []int64{}
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode rate limit timestamps: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upsertRateLimitQuery, key, userID, action, string(encoded), toMillis(now)); err != nil {
			return fmt.Errorf("failed to write rate limit: %w", err)
		}
		return nil
	})
}

// GetRateLimit returns the stored record or nil.
func (d *Database) GetRateLimit(ctx context.Context, userID, action string) (*models.RateLimitRecord, error) {
	var (
		rec         models.RateLimitRecord
		raw         string
		lastUpdated int64
	)
	err := d.db.QueryRowContext(ctx, selectRateLimitQuery, models.RateLimitKey(userID, action)).
		Scan(&rec.Key, &rec.UserID, &rec.Action, &raw, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &rec.Timestamps); err != nil {
		return nil, fmt.Errorf("failed to decode rate limit timestamps: %w", err)
	}
	rec.LastUpdated = fromMillis(lastUpdated)
	return &rec, nil
}
