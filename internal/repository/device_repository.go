package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/medhome/internal/dbx"
	"github.com/iliyamo/medhome/internal/model"
)

// claimAttempts bounds how often ClaimUnassigned re-selects a candidate
// after losing the conditional update to a concurrent claimer.
const claimAttempts = 5

// DeviceRepo provides data access to the devices table.  Ownership is
// stored as the owner's username; a NULL username means the device is in
// the free pool.
type DeviceRepo struct {
	db dbx.DBTX
}

// NewDeviceRepo returns a DeviceRepo bound to the provided handle.
func NewDeviceRepo(db dbx.DBTX) *DeviceRepo { return &DeviceRepo{db: db} }

// Insert adds an unowned device.  Re-inserting an existing serial is a
// no-op and reports false.
func (r *DeviceRepo) Insert(ctx context.Context, serial string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT IGNORE INTO devices (serial_num) VALUES (?)`, serial)
	if err != nil {
		return false, fmt.Errorf("insert device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountUnassigned returns the size of the free pool.
func (r *DeviceRepo) CountUnassigned(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE username IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count free devices: %w", err)
	}
	return n, nil
}

// ClaimUnassigned picks one unowned device and marks it as owned by owner.
// The candidate is read with FOR UPDATE SKIP LOCKED so concurrent claimers
// inside transactions skip each other's rows, and the mark is a conditional
// update that only succeeds while the row is still unowned.  A lost race is
// retried with a fresh candidate; an empty pool yields ErrNoDeviceAvailable.
//
// The owner must already exist in users (foreign key), so callers run this
// inside the same transaction that inserts the user.
func (r *DeviceRepo) ClaimUnassigned(ctx context.Context, owner string) (string, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		var serial string
		err := r.db.QueryRowContext(ctx,
			`SELECT serial_num FROM devices WHERE username IS NULL ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED`,
		).Scan(&serial)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", ErrNoDeviceAvailable
			}
			return "", fmt.Errorf("select free device: %w", err)
		}
		res, err := r.db.ExecContext(ctx,
			`UPDATE devices SET username = ? WHERE serial_num = ? AND username IS NULL`,
			owner, serial)
		if err != nil {
			return "", fmt.Errorf("claim device: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return "", err
		}
		if n == 1 {
			return serial, nil
		}
	}
	return "", ErrNoDeviceAvailable
}

// GetBySerial fetches a device by serial.
func (r *DeviceRepo) GetBySerial(ctx context.Context, serial string) (*model.Device, error) {
	var (
		d     model.Device
		owner sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, serial_num, username, created_at FROM devices WHERE serial_num = ? LIMIT 1`, serial,
	).Scan(&d.ID, &d.SerialNum, &owner, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	if owner.Valid {
		o := owner.String
		d.Owner = &o
	}
	return &d, nil
}

// GetByOwner lists the devices owned by a user, oldest first.
func (r *DeviceRepo) GetByOwner(ctx context.Context, owner string) ([]model.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, serial_num, created_at FROM devices WHERE username = ? ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()
	var out []model.Device
	for rows.Next() {
		d := model.Device{Owner: &owner}
		if err := rows.Scan(&d.ID, &d.SerialNum, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Unassign returns a device to the free pool and reports the previous
// owner ("" when it was already unowned).  Run it in a transaction together
// with clearing the owner's users.serial_num.
func (r *DeviceRepo) Unassign(ctx context.Context, serial string) (string, error) {
	var owner sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT username FROM devices WHERE serial_num = ? FOR UPDATE`, serial).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lock device: %w", err)
	}
	if !owner.Valid {
		return "", nil
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE devices SET username = NULL WHERE serial_num = ?`, serial); err != nil {
		return "", fmt.Errorf("unassign device: %w", err)
	}
	return owner.String, nil
}
