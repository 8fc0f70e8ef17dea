package repository

import (
	"context"
	"fmt"

	"github.com/iliyamo/medhome/internal/dbx"
	"github.com/iliyamo/medhome/internal/model"
)

// VitalsRepo provides access to the append-only vitals table.  Each row is
// one day's aggregate for one chair.
type VitalsRepo struct {
	db dbx.DBTX
}

// NewVitalsRepo returns a VitalsRepo bound to the provided handle.
func NewVitalsRepo(db dbx.DBTX) *VitalsRepo { return &VitalsRepo{db: db} }

// Append inserts rec and populates its generated ID.  RecordedAt is stored
// in UTC.
func (r *VitalsRepo) Append(ctx context.Context, rec *model.VitalsRecord) error {
	const q = `INSERT INTO vitals (username, serial_num, avg_hr, avg_spo2, weight, bp_systolic, bp_diastolic, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		rec.Owner, rec.SerialNum,
		rec.AvgHeartRate, rec.AvgSpO2, rec.Weight, rec.Systolic, rec.Diastolic,
		rec.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert vitals: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)
	return nil
}

// ListRecent returns up to limit records for owner, newest first.  Callers
// that need chronological order reverse the slice.
func (r *VitalsRepo) ListRecent(ctx context.Context, owner string, limit int) ([]model.VitalsRecord, error) {
	const q = `SELECT id, username, serial_num, avg_hr, avg_spo2, weight, bp_systolic, bp_diastolic, created_at
               FROM vitals
               WHERE username = ?
               ORDER BY created_at DESC, id DESC
               LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list vitals: %w", err)
	}
	defer rows.Close()
	out := make([]model.VitalsRecord, 0, limit)
	for rows.Next() {
		var v model.VitalsRecord
		if err := rows.Scan(&v.ID, &v.Owner, &v.SerialNum,
			&v.AvgHeartRate, &v.AvgSpO2, &v.Weight, &v.Systolic, &v.Diastolic,
			&v.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
