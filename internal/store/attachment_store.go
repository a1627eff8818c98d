package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/tido/internal/model"
)

const attachmentColumns = `
	id, todo_id, uploaded_by, original_name, stored_name, mime_type, size, created_at`

// storedName derives an unguessable on-disk name that keeps the original
// extension.
func storedName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return uuid.New().String() + ext
}

// sanitizeName strips directories and control characters from a client
// file name.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// CreateAttachment records an uploaded file on a live todo. The returned
// attachment carries the stored name so the caller can write the file.
func (s *SQLiteStore) CreateAttachment(ctx context.Context, userID string, in model.NewAttachment) (*model.Attachment, error) {
	in.OriginalName = sanitizeName(in.OriginalName)
	if err := s.check(in); err != nil {
		return nil, err
	}

	var a model.Attachment
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := todoFor(ctx, tx, userID, in.TodoID, model.PermissionEditor); err != nil {
			return err
		}

		a = model.Attachment{
			ID:           uuid.New().String(),
			TodoID:       in.TodoID,
			UploadedBy:   &userID,
			OriginalName: in.OriginalName,
			StoredName:   storedName(in.OriginalName),
			MimeType:     in.MimeType,
			Size:         in.Size,
			CreatedAt:    s.utcNow(),
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (`+attachmentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.TodoID, a.UploadedBy, a.OriginalName, a.StoredName,
			a.MimeType, a.Size, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating attachment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if t, err := loadTodo(ctx, s.db, a.TodoID); err == nil {
		s.notify(ctx, model.Event{Kind: model.EventTodoUpdated, ListID: t.ListID, Payload: t})
	}
	return &a, nil
}

// GetAttachments lists a todo's attachments.
func (s *SQLiteStore) GetAttachments(ctx context.Context, userID, todoID string) ([]model.Attachment, error) {
	t, err := todoFor(ctx, s.db, userID, todoID, model.PermissionEditor)
	if err != nil {
		return nil, err
	}
	todos := []model.Todo{*t}
	if err := attachFiles(ctx, s.db, todos); err != nil {
		return nil, err
	}
	return todos[0].Attachments, nil
}

// GetAttachmentFile returns an attachment, including its stored name, for
// serving the file. Callers outside the list get ErrNotFound.
func (s *SQLiteStore) GetAttachmentFile(ctx context.Context, userID, attachmentID string) (*model.Attachment, error) {
	if err := validID("attachment", attachmentID); err != nil {
		return nil, err
	}
	var a model.Attachment
	err := s.db.GetContext(ctx, &a,
		"SELECT "+attachmentColumns+" FROM attachments WHERE id = ?", attachmentID)
	if err != nil {
		return nil, notFound(err, "attachment", attachmentID)
	}
	if _, err := todoFor(ctx, s.db, userID, a.TodoID, model.PermissionEditor); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAttachment removes an attachment record and returns it so the
// caller can remove the file.
func (s *SQLiteStore) DeleteAttachment(ctx context.Context, userID, attachmentID string) (*model.Attachment, error) {
	var (
		a model.Attachment
		t *model.Todo
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := validID("attachment", attachmentID); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &a,
			"SELECT "+attachmentColumns+" FROM attachments WHERE id = ?", attachmentID); err != nil {
			return notFound(err, "attachment", attachmentID)
		}
		if _, err := todoFor(ctx, tx, userID, a.TodoID, model.PermissionEditor); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM attachments WHERE id = ?", attachmentID); err != nil {
			return fmt.Errorf("deleting attachment %s: %w", attachmentID, err)
		}
		var err error
		t, err = loadTodo(ctx, tx, a.TodoID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.Event{Kind: model.EventTodoUpdated, ListID: t.ListID, Payload: t})
	return &a, nil
}
