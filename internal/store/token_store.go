package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/tido/internal/auth"
	"github.com/nhle/tido/internal/model"
)

// ErrInvalidToken covers unknown, expired, and already used tokens.
var ErrInvalidToken = condition(ErrInvalidPayload, "invalid_token", "invalid or expired token")

// IssueToken creates a single-use token for purpose and returns the raw
// value. Earlier tokens of the same purpose for the user are removed.
func (s *SQLiteStore) IssueToken(ctx context.Context, userID string, purpose model.TokenPurpose) (string, error) {
	raw, err := auth.NewToken()
	if err != nil {
		return "", err
	}
	now := s.utcNow()

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM user_tokens WHERE user_id = ? AND purpose = ?", userID, purpose)
		if err != nil {
			return fmt.Errorf("removing prior %s tokens: %w", purpose, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_tokens (id, user_id, purpose, token_hash, expires_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), userID, purpose, auth.HashToken(raw),
			now.Add(purpose.TTL()), now,
		)
		if err != nil {
			return fmt.Errorf("issuing %s token: %w", purpose, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// consumeToken deletes the token and returns its user. The row is removed
// even when it turns out to be expired.
func (s *SQLiteStore) consumeToken(ctx context.Context, tx *sqlx.Tx, purpose model.TokenPurpose, raw string) (string, error) {
	var row struct {
		ID        string    `db:"id"`
		UserID    string    `db:"user_id"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	err := tx.GetContext(ctx, &row,
		"SELECT id, user_id, expires_at FROM user_tokens WHERE token_hash = ? AND purpose = ?",
		auth.HashToken(raw), purpose)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("looking up %s token: %w", purpose, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM user_tokens WHERE id = ?", row.ID); err != nil {
		return "", fmt.Errorf("consuming %s token: %w", purpose, err)
	}
	if !s.utcNow().Before(row.ExpiresAt) {
		return "", ErrInvalidToken
	}
	return row.UserID, nil
}

// VerifyEmail consumes a verification token and marks the email verified.
func (s *SQLiteStore) VerifyEmail(ctx context.Context, raw string) (string, error) {
	var userID string
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		userID, err = s.consumeToken(ctx, tx, model.TokenEmailVerification, raw)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE users SET email_verified = 1 WHERE id = ?", userID)
		if err != nil {
			return fmt.Errorf("marking email verified: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrInvalidToken) {
		// An expired token is still spent.
		s.commitSpentToken(ctx, model.TokenEmailVerification, raw)
	}
	return userID, err
}

// ResetPassword consumes a reset token, stores the new password, and signs
// the user out everywhere.
func (s *SQLiteStore) ResetPassword(ctx context.Context, raw, newPassword string) error {
	if len(newPassword) < 8 || len(newPassword) > 72 {
		return fmt.Errorf("password must be 8 to 72 bytes: %w", ErrInvalidPayload)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		userID, err := s.consumeToken(ctx, tx, model.TokenPasswordReset, raw)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET password_hash = ? WHERE id = ?", hash, userID); err != nil {
			return fmt.Errorf("updating password: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("revoking sessions: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrInvalidToken) {
		s.commitSpentToken(ctx, model.TokenPasswordReset, raw)
	}
	return err
}

// commitSpentToken deletes a token outside the failed transaction so an
// expired token cannot be retried.
func (s *SQLiteStore) commitSpentToken(ctx context.Context, purpose model.TokenPurpose, raw string) {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM user_tokens WHERE token_hash = ? AND purpose = ?", auth.HashToken(raw), purpose)
	if err != nil {
		s.logger.Warn("deleting spent token failed", "purpose", purpose, "error", err)
	}
}

// CleanExpiredTokens deletes tokens that expired before now.
func (s *SQLiteStore) CleanExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM user_tokens WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleaning expired tokens: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
