package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/tido/internal/auth"
	"github.com/nhle/tido/internal/model"
)

// SessionTTL is the absolute lifetime of a login session. Sessions are not
// extended on use.
const SessionTTL = 7 * 24 * time.Hour

// CreateSession issues a new session token for userID.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	token, err := auth.NewToken()
	if err != nil {
		return nil, err
	}

	now := s.utcNow()
	sess := model.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(SessionTTL),
		CreatedAt: now,
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		sess.Token, sess.UserID, sess.ExpiresAt, sess.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &sess, nil
}

// ResolveSession maps a token to its user. Missing and expired sessions
// yield ErrUnauthorized; expired ones are deleted on the way out.
func (s *SQLiteStore) ResolveSession(ctx context.Context, token string) (*model.SessionUser, error) {
	if token == "" {
		return nil, fmt.Errorf("empty session token: %w", ErrUnauthorized)
	}

	var row struct {
		model.SessionUser
		ExpiresAt time.Time `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT s.user_id, u.username, u.is_admin, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ?`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unknown session: %w", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	if !s.utcNow().Before(row.ExpiresAt) {
		if err := s.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("deleting expired session failed", "error", err)
		}
		return nil, fmt.Errorf("session expired: %w", ErrUnauthorized)
	}

	return &row.SessionUser, nil
}

// DeleteSession removes a session (logout).
func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// CleanExpiredSessions deletes sessions that expired before now.
func (s *SQLiteStore) CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleaning expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
