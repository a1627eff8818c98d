package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/tido/internal/access"
	"github.com/nhle/tido/internal/auth"
	"github.com/nhle/tido/internal/model"
)

// defaultListName is the personal list every new account starts with.
const defaultListName = "My Tasks"

// ErrPendingApproval is returned when an unapproved account logs in.
var ErrPendingApproval = condition(ErrAccessDenied, "pending_approval", "account is pending approval")

const userColumns = `
	id, username, email, password_hash, is_admin, is_approved, email_verified,
	default_task_priority, default_task_due_offset_days, default_task_reminder_minutes,
	auto_archive_days, week_start_day, created_at`

// CreateUser registers an account. The first account ever created is an
// approved site admin. Every account gets a personal list.
func (s *SQLiteStore) CreateUser(ctx context.Context, in model.NewUser) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.check(in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.utcNow()
	u := model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		Preferences:  model.DefaultPreferences(),
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		var count int
		if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
			return fmt.Errorf("counting users: %w", err)
		}
		if count == 0 {
			u.IsAdmin = true
			u.IsApproved = true
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (
				id, username, email, password_hash, is_admin, is_approved, email_verified,
				default_task_priority, default_task_due_offset_days, default_task_reminder_minutes,
				auto_archive_days, week_start_day, created_at
			) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.Username, u.Email, u.PasswordHash,
			boolToInt(u.IsAdmin), boolToInt(u.IsApproved),
			u.DefaultTaskPriority, u.DefaultTaskDueOffsetDays, u.DefaultTaskReminderMinutes,
			u.AutoArchiveDays, u.WeekStartDay, u.CreatedAt,
		)
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		_, err = insertList(ctx, tx, u.ID, defaultListName, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", u.ID, "admin", u.IsAdmin)
	return &u, nil
}

// Authenticate checks credentials. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *SQLiteStore) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := getUserBy(ctx, s.db, "username", strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrMismatch) {
			return nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("comparing password: %w", err)
	}
	if !u.IsApproved {
		return nil, ErrPendingApproval
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	if err := validID("user", id); err != nil {
		return nil, err
	}
	return getUserBy(ctx, s.db, "id", id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return getUserBy(ctx, s.db, "username", strings.TrimSpace(username))
}

func getUserBy(ctx context.Context, q sqlx.QueryerContext, column, value string) (*model.User, error) {
	var u model.User
	query := "SELECT " + userColumns + " FROM users WHERE " + column + " = ?"
	if err := sqlx.GetContext(ctx, q, &u, query, value); err != nil {
		return nil, notFound(err, "user", value)
	}
	return &u, nil
}

// UpdatePreferences stores prefs after clamping them into range.
func (s *SQLiteStore) UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) (*model.User, error) {
	prefs = prefs.Normalize()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			default_task_priority = ?, default_task_due_offset_days = ?,
			default_task_reminder_minutes = ?, auto_archive_days = ?, week_start_day = ?
		WHERE id = ?`,
		prefs.DefaultTaskPriority, prefs.DefaultTaskDueOffsetDays,
		prefs.DefaultTaskReminderMinutes, prefs.AutoArchiveDays, prefs.WeekStartDay,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating preferences for %s: %w", userID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return s.GetUser(ctx, userID)
}

// ListUsers returns every account. Site admins only.
func (s *SQLiteStore) ListUsers(ctx context.Context, actorID string) ([]model.User, error) {
	if err := s.requireSiteAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	var users []model.User
	err := s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	return users, nil
}

// ListPendingUsers returns accounts awaiting approval. Site admins only.
func (s *SQLiteStore) ListPendingUsers(ctx context.Context, actorID string) ([]model.User, error) {
	if err := s.requireSiteAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	var users []model.User
	err := s.db.SelectContext(ctx, &users,
		"SELECT "+userColumns+" FROM users WHERE is_approved = 0 ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("querying pending users: %w", err)
	}
	return users, nil
}

// ApproveUser lets a pending account log in.
func (s *SQLiteStore) ApproveUser(ctx context.Context, actorID, userID string) error {
	return s.setUserFlag(ctx, actorID, userID, "is_approved", true)
}

// SetUserAdmin grants or revokes site admin.
func (s *SQLiteStore) SetUserAdmin(ctx context.Context, actorID, userID string, admin bool) error {
	if actorID == userID && !admin {
		return ErrSelfDeletion
	}
	return s.setUserFlag(ctx, actorID, userID, "is_admin", admin)
}

func (s *SQLiteStore) setUserFlag(ctx context.Context, actorID, userID, column string, v bool) error {
	if err := s.requireSiteAdmin(ctx, actorID); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET "+column+" = ? WHERE id = ?", boolToInt(v), userID)
	if err != nil {
		return fmt.Errorf("updating %s for user %s: %w", column, userID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// DeleteUser removes an account. Sessions, memberships, created lists and
// todos cascade; assignments to the user are cleared.
func (s *SQLiteStore) DeleteUser(ctx context.Context, actorID, userID string) error {
	if err := s.requireSiteAdmin(ctx, actorID); err != nil {
		return err
	}
	if actorID == userID {
		return ErrSelfDeletion
	}

	// The user's todos in other people's lists go with the account, so
	// those lists are re-densified afterwards.
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var lists []string
		err := tx.SelectContext(ctx, &lists, `
			SELECT DISTINCT t.list_id FROM todos t
			JOIN lists l ON l.id = t.list_id
			WHERE t.created_by = ? AND l.created_by != ?`, userID, userID)
		if err != nil {
			return fmt.Errorf("finding lists touched by %s: %w", userID, err)
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID)
		if err != nil {
			return fmt.Errorf("deleting user %s: %w", userID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}

		for _, listID := range lists {
			if err := densifyList(ctx, tx, listID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", userID, "by", actorID)
	return nil
}

func (s *SQLiteStore) requireSiteAdmin(ctx context.Context, actorID string) error {
	u, err := getUserBy(ctx, s.db, "id", actorID)
	if errors.Is(err, ErrNotFound) {
		return access.RequireSiteAdmin(nil)
	}
	if err != nil {
		return err
	}
	return access.RequireSiteAdmin(u)
}
