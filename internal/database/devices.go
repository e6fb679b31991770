package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"raine/internal/models"
)

// UpsertDevice registers or refreshes a device's push token.
func (d *Database) UpsertDevice(ctx context.Context, device *models.Device) error {
	token, err := d.encryptor.Encrypt(device.PushToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt push token: %w", err)
	}
	return withLockRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertDeviceQuery,
			device.UserID, device.DeviceID, token, string(device.Platform),
			toMillis(device.LastActive), device.AppVersion)
		if err != nil {
			return fmt.Errorf("failed to upsert device: %w", err)
		}
		return nil
	}, "upsert device")
}

// ListDevices returns the devices of every given user.
func (d *Database) ListDevices(ctx context.Context, userIDs []string) ([]models.Device, error) {
	var devices []models.Device
	err := chunk(len(userIDs), 500, func(start, end int) error {
		part := userIDs[start:end]
		args := make([]interface{}, len(part))
		for i, id := range part {
			args[i] = id
		}

		rows, err := d.db.QueryContext(ctx, `
			SELECT user_id, device_id, push_token, platform, last_active, app_version
			FROM devices
			WHERE user_id IN (`+placeholders(len(part))+`)
			ORDER BY user_id, device_id`, args...) // #nosec G202 - placeholders only
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				dev        models.Device
				stored     string
				platform   string
				lastActive int64
			)
			if err := rows.Scan(&dev.UserID, &dev.DeviceID, &stored, &platform, &lastActive, &dev.AppVersion); err != nil {
				return fmt.Errorf("failed to scan device: %w", err)
			}
			dev.PushToken, err = d.encryptor.Decrypt(stored)
			if err != nil {
				return fmt.Errorf("failed to decrypt push token: %w", err)
			}
			dev.Platform = models.ParsePlatform(platform)
			dev.LastActive = fromMillis(lastActive)
			devices = append(devices, dev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// DeleteDevices removes the referenced devices in transactions of at most
// chunkSize rows and returns how many existed.
func (d *Database) DeleteDevices(ctx context.Context, refs []models.DeviceRef, chunkSize int) (int, error) {
	deleted := 0
	err := chunk(len(refs), chunkSize, func(start, end int) error {
		var n int
		err := d.RunInTx(ctx, "delete devices", func(tx *sql.Tx) error {
			n = 0
			stmt, err := tx.PrepareContext(ctx, deleteDeviceQuery)
			if err != nil {
				return fmt.Errorf("failed to prepare device delete: %w", err)
			}
			defer stmt.Close()

			for _, ref := range refs[start:end] {
				res, err := stmt.ExecContext(ctx, ref.UserID, ref.DeviceID)
				if err != nil {
					return fmt.Errorf("failed to delete device: %w", err)
				}
				affected, _ := res.RowsAffected()
				n += int(affected)
			}
			return nil
		})
		if err != nil {
			return err
		}
		deleted += n
		return nil
	})
	return deleted, err
}

// DeleteStaleDevices removes devices inactive since before, committing at
// most chunkSize deletions per transaction until none remain.
func (d *Database) DeleteStaleDevices(ctx context.Context, before time.Time, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		refs, err := d.staleDevices(ctx, before, chunkSize)
		if err != nil {
			return total, err
		}
		if len(refs) == 0 {
			return total, nil
		}

		n, err := d.DeleteDevices(ctx, refs, chunkSize)
		total += n
		if err != nil {
			return total, err
		}
		if len(refs) < chunkSize {
			return total, nil
		}
	}
}

func (d *Database) staleDevices(ctx context.Context, before time.Time, limit int) ([]models.DeviceRef, error) {
	rows, err := d.db.QueryContext(ctx, selectStaleDevicesQuery, toMillis(before), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale devices: %w", err)
	}
	defer rows.Close()

	var refs []models.DeviceRef
	for rows.Next() {
		var ref models.DeviceRef
		if err := rows.Scan(&ref.UserID, &ref.DeviceID); err != nil {
			return nil, fmt.Errorf("failed to scan stale device: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
