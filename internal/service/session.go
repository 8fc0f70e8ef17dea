package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/repository"
)

// Sessions issues and checks opaque session tokens.  A token stays valid
// until it is revoked, or until maxAge has passed when maxAge > 0.
type Sessions struct {
	db     *sql.DB
	repos  repository.Manager
	cred   *Credential
	maxAge time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewSessions returns a session manager.
func NewSessions(db *sql.DB, repos repository.Manager, cred *Credential, maxAge time.Duration, log *zap.Logger) *Sessions {
	return &Sessions{
		db:     db,
		repos:  repos,
		cred:   cred,
		maxAge: maxAge,
		now:    time.Now,
		log:    log.Named("sessions"),
	}
}

// Login checks username and password and opens a session.  Unknown users
// and wrong passwords both yield ErrInvalidCredentials.
func (s *Sessions) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}
	u, err := s.repos.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !s.cred.Verify(password, u.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.Create(ctx, u.ID)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Create opens a new session for userID and returns its token.  A user may
// hold any number of live sessions.
func (s *Sessions) Create(ctx context.Context, userID uint64) (string, error) {
	token := uuid.NewString()
	if err := s.repos.Sessions(s.db).Create(ctx, token, userID); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the user behind token.  Empty, unknown and expired tokens
// and tokens whose user no longer exists yield ErrInvalidSession.
func (s *Sessions) Resolve(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	sess, err := s.repos.Sessions(s.db).Get(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if sess.Expired(s.now(), s.maxAge) {
		return nil, ErrInvalidSession
	}
	u, err := s.repos.Users(s.db).GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return u, nil
}

// Revoke deletes token.  Revoking an unknown token succeeds.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.repos.Sessions(s.db).Delete(ctx, token)
}

// Authorize resolves token and checks that it belongs to username.  Every
// failure, including an invalid session, is reported as ErrForbidden so
// callers cannot tell a bad token from someone else's account.
func (s *Sessions) Authorize(ctx context.Context, token, username string) (*model.User, error) {
	u, err := s.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if u.Username != username {
		return nil, ErrForbidden
	}
	return u, nil
}

// PurgeAll deletes every session.  It runs at startup when configured.
func (s *Sessions) PurgeAll(ctx context.Context) (int64, error) {
	n, err := s.repos.Sessions(s.db).DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info("sessions purged", zap.Int64("count", n))
	return n, nil
}

// PurgeExpired deletes sessions older than maxAge.  It is a no-op when
// sessions never expire.
func (s *Sessions) PurgeExpired(ctx context.Context) (int64, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}
	return s.repos.Sessions(s.db).DeleteOlderThan(ctx, s.now().Add(-s.maxAge))
}
