package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/tido/internal/model"
)

const maxCommentLen = 5000

// ErrNotAuthor is returned when a comment is changed by someone other
// than its author.
var ErrNotAuthor = condition(ErrAccessDenied, "not_author", "only the author can change this comment")

const commentSelect = `
	SELECT c.id, c.todo_id, c.user_id, u.username, c.text, c.created_at, c.updated_at
	FROM comments c
	JOIN users u ON u.id = c.user_id`

func cleanComment(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxCommentLen {
		return "", fmt.Errorf("comment must be 1 to %d characters: %w", maxCommentLen, ErrInvalidPayload)
	}
	return text, nil
}

// CreateComment adds a comment to a live todo.
func (s *SQLiteStore) CreateComment(ctx context.Context, userID, todoID, text string) (*model.Comment, error) {
	text, err := cleanComment(text)
	if err != nil {
		return nil, err
	}

	var c model.Comment
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := todoFor(ctx, tx, userID, todoID, model.PermissionEditor); err != nil {
			return err
		}

		now := s.utcNow()
		id := uuid.New().String()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, todo_id, user_id, text, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`, id, todoID, userID, text, now, now)
		if err != nil {
			return fmt.Errorf("creating comment: %w", err)
		}
		return tx.GetContext(ctx, &c, commentSelect+" WHERE c.id = ?", id)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetComments returns a todo's comments, oldest first.
func (s *SQLiteStore) GetComments(ctx context.Context, userID, todoID string) ([]model.Comment, error) {
	if _, err := todoFor(ctx, s.db, userID, todoID, model.PermissionEditor); err != nil {
		return nil, err
	}

	var comments []model.Comment
	err := s.db.SelectContext(ctx, &comments,
		commentSelect+" WHERE c.todo_id = ? ORDER BY c.created_at, c.id", todoID)
	if err != nil {
		return nil, fmt.Errorf("querying comments for %s: %w", todoID, err)
	}
	return comments, nil
}

// authorComment loads a comment on a live todo and checks the caller wrote it.
func authorComment(ctx context.Context, tx *sqlx.Tx, userID, commentID string) (*model.Comment, error) {
	if err := validID("comment", commentID); err != nil {
		return nil, err
	}
	var c model.Comment
	if err := tx.GetContext(ctx, &c, commentSelect+" WHERE c.id = ?", commentID); err != nil {
		return nil, notFound(err, "comment", commentID)
	}
	if _, err := todoFor(ctx, tx, userID, c.TodoID, model.PermissionEditor); err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrNotAuthor
	}
	return &c, nil
}

// UpdateComment edits a comment. Authors only.
func (s *SQLiteStore) UpdateComment(ctx context.Context, userID, commentID, text string) (*model.Comment, error) {
	text, err := cleanComment(text)
	if err != nil {
		return nil, err
	}

	var c *model.Comment
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		c, err = authorComment(ctx, tx, userID, commentID)
		if err != nil {
			return err
		}
		now := s.utcNow()
		if _, err := tx.ExecContext(ctx,
			"UPDATE comments SET text = ?, updated_at = ? WHERE id = ?", text, now, commentID); err != nil {
			return fmt.Errorf("updating comment %s: %w", commentID, err)
		}
		c.Text = text
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteComment removes a comment. Authors only.
func (s *SQLiteStore) DeleteComment(ctx context.Context, userID, commentID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := authorComment(ctx, tx, userID, commentID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE id = ?", commentID); err != nil {
			return fmt.Errorf("deleting comment %s: %w", commentID, err)
		}
		return nil
	})
}
