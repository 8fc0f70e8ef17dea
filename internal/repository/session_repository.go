package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/medhome/internal/dbx"
	"github.com/iliyamo/medhome/internal/model"
)

// SessionRepo persists opaque session tokens in the 'sessions' table.  The
// user_id foreign key cascades on delete, so a removed user takes its
// sessions with it.
type SessionRepo struct{ db dbx.DBTX }

func NewSessionRepo(db dbx.DBTX) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts a session row.  A colliding id yields ErrConflict.
func (r *SessionRepo) Create(ctx context.Context, id string, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id) VALUES (?,?)", id, userID)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get returns the session with the given id or ErrNotFound.
func (r *SessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, created_at FROM sessions WHERE id=? LIMIT 1", id,
	).Scan(&s.ID, &s.UserID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// Delete removes a session.  Deleting a missing id is not an error.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id=?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteAll clears every session, used when the server starts.
func (r *SessionRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions")
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOlderThan removes sessions created before cutoff.
func (r *SessionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	return res.RowsAffected()
}
