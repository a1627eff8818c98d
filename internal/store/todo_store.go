package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/tido/internal/access"
	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/recurrence"
)

// RetentionWindow is how long a soft-deleted todo stays restorable.
const RetentionWindow = 7 * 24 * time.Hour

const maxReminderMinutes = 10080

// ErrParentDeleted is returned when restoring a subtask whose parent is
// still deleted.
var ErrParentDeleted = condition(ErrInvariantViolation, "parent_deleted", "restore the parent todo first")

const todoColumns = `
	t.id, t.list_id, t.created_by, t.text, t.completed, t.completed_by, t.completed_at,
	t.due_date, t.reminder_minutes_before, t.priority, t.notes, t.assigned_to,
	t.is_recurring, t.recurrence_pattern, t.next_occurrence, t.parent_todo_id,
	t.sort_order, t.deleted_at, t.archived_at, t.created_at, t.updated_at,
	cu.username AS completed_by_username,
	au.username AS assigned_to_username,
	(SELECT COUNT(*) FROM comments c WHERE c.todo_id = t.id) AS comment_count`

const todoFrom = `
	FROM todos t
	LEFT JOIN users cu ON cu.id = t.completed_by
	LEFT JOIN users au ON au.id = t.assigned_to`

// getTodoRow loads a todo in any state.
func getTodoRow(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Todo, error) {
	var t model.Todo
	err := sqlx.GetContext(ctx, q, &t, "SELECT "+todoColumns+todoFrom+" WHERE t.id = ?", id)
	if err != nil {
		return nil, notFound(err, "todo", id)
	}
	return &t, nil
}

func selectTodos(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) ([]model.Todo, error) {
	var todos []model.Todo
	query := "SELECT " + todoColumns + todoFrom + " WHERE " + where +
		" ORDER BY t.sort_order, t.created_at, t.id"
	if err := sqlx.SelectContext(ctx, q, &todos, query, args...); err != nil {
		return nil, fmt.Errorf("querying todos: %w", err)
	}
	return todos, nil
}

// attachFiles loads non-deleted attachments for every todo in one query.
func attachFiles(ctx context.Context, q sqlx.QueryerContext, todos []model.Todo) error {
	if len(todos) == 0 {
		return nil
	}

	ids := make([]string, len(todos))
	for i := range todos {
		ids[i] = todos[i].ID
		todos[i].Attachments = []model.Attachment{}
	}

	query, args, err := sqlx.In(
		"SELECT "+attachmentColumns+" FROM attachments WHERE todo_id IN (?) ORDER BY created_at, id", ids)
	if err != nil {
		return fmt.Errorf("building attachment query: %w", err)
	}

	var atts []model.Attachment
	if err := sqlx.SelectContext(ctx, q, &atts, query, args...); err != nil {
		return fmt.Errorf("loading attachments: %w", err)
	}

	byTodo := make(map[string][]model.Attachment, len(todos))
	for _, a := range atts {
		byTodo[a.TodoID] = append(byTodo[a.TodoID], a)
	}
	for i := range todos {
		if a, ok := byTodo[todos[i].ID]; ok {
			todos[i].Attachments = a
		}
	}
	return nil
}

func loadTodo(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Todo, error) {
	t, err := getTodoRow(ctx, q, id)
	if err != nil {
		return nil, err
	}
	one := []model.Todo{*t}
	if err := attachFiles(ctx, q, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// todoFor loads a live todo and checks the caller's permission on its
// list. Callers outside the list get ErrNotFound.
func todoFor(ctx context.Context, q sqlx.QueryerContext, userID, todoID string, need model.Permission) (*model.Todo, error) {
	if err := validID("todo", todoID); err != nil {
		return nil, err
	}
	t, err := getTodoRow(ctx, q, todoID)
	if err != nil {
		return nil, err
	}
	if t.DeletedAt != nil {
		return nil, fmt.Errorf("todo %s: %w", todoID, ErrNotFound)
	}
	m, err := membership(ctx, q, t.ListID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("todo %s: %w", todoID, ErrNotFound)
	}
	if err := access.Require(m, need); err != nil {
		return nil, err
	}
	return t, nil
}

// checkAssignee requires a membership row for assignee in listID.
func checkAssignee(ctx context.Context, q sqlx.QueryerContext, listID string, assignee *string) error {
	if assignee == nil {
		return nil
	}
	if _, err := uuid.Parse(*assignee); err != nil {
		return ErrInvalidAssignee
	}
	m, err := membership(ctx, q, listID, *assignee)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrInvalidAssignee
	}
	return nil
}

func checkReminder(v *int) error {
	if v != nil && (*v < 0 || *v > maxReminderMinutes) {
		return fmt.Errorf("reminder must be 0 to %d minutes: %w", maxReminderMinutes, ErrInvalidPayload)
	}
	return nil
}

func insertTodo(ctx context.Context, tx *sqlx.Tx, t *model.Todo) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO todos (
			id, list_id, created_by, text, completed, due_date, reminder_minutes_before,
			priority, notes, assigned_to, is_recurring, recurrence_pattern, next_occurrence,
			parent_todo_id, sort_order, created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ListID, t.CreatedBy, t.Text, utcPtr(t.DueDate), t.ReminderMinutesBefore,
		t.Priority, t.Notes, t.AssignedTo, boolToInt(t.IsRecurring), t.RecurrencePattern,
		utcPtr(t.NextOccurrence), t.ParentTodoID, t.SortOrder, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating todo: %w", err)
	}
	return nil
}

// CreateTodo adds a todo at the end of its sibling group. Unset fields
// take the creator's preferences.
func (s *SQLiteStore) CreateTodo(ctx context.Context, userID string, in model.NewTodo) (*model.Todo, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := s.check(in); err != nil {
		return nil, err
	}
	if err := checkReminder(in.ReminderMinutesBefore); err != nil {
		return nil, err
	}

	var created *model.Todo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := requireMember(ctx, tx, in.ListID, userID, model.PermissionEditor); err != nil {
			return err
		}

		if in.ParentTodoID != nil {
			parent, err := getTodoRow(ctx, tx, *in.ParentTodoID)
			if err != nil {
				return err
			}
			if parent.DeletedAt != nil {
				return fmt.Errorf("parent todo %s: %w", parent.ID, ErrNotFound)
			}
			if parent.ListID != in.ListID {
				return ErrCrossListParent
			}
			if parent.IsSubtask() {
				return ErrSubtaskDepth
			}
		}

		if err := checkAssignee(ctx, tx, in.ListID, in.AssignedTo); err != nil {
			return err
		}

		creator, err := getUserBy(ctx, tx, "id", userID)
		if err != nil {
			return err
		}

		now := s.utcNow()
		t := model.Todo{
			ID:                    uuid.New().String(),
			ListID:                in.ListID,
			CreatedBy:             userID,
			Text:                  in.Text,
			DueDate:               utcPtr(in.DueDate),
			ReminderMinutesBefore: in.ReminderMinutesBefore,
			Priority:              creator.DefaultTaskPriority,
			Notes:                 in.Notes,
			AssignedTo:            in.AssignedTo,
			ParentTodoID:          in.ParentTodoID,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if in.Priority != nil {
			t.Priority = model.NormalizePriority(string(*in.Priority))
		}
		if t.DueDate == nil && creator.DefaultTaskDueOffsetDays > 0 {
			d := now.AddDate(0, 0, creator.DefaultTaskDueOffsetDays)
			due := time.Date(d.Year(), d.Month(), d.Day(), 17, 0, 0, 0, time.UTC)
			t.DueDate = &due
		}
		if t.ReminderMinutesBefore == nil {
			t.ReminderMinutesBefore = creator.DefaultTaskReminderMinutes
		}

		if in.IsRecurring {
			if in.RecurrencePattern == nil || !recurrence.Valid(*in.RecurrencePattern) {
				return ErrInvalidRecurrence
			}
			t.IsRecurring = true
			t.RecurrencePattern = in.RecurrencePattern
			next := recurrence.Next(*in.RecurrencePattern, baseTime(t.DueDate, now))
			t.NextOccurrence = &next
		}

		t.SortOrder, err = nextSortOrder(ctx, tx, t.ListID, t.ParentTodoID)
		if err != nil {
			return err
		}

		if err := insertTodo(ctx, tx, &t); err != nil {
			return err
		}

		created, err = loadTodo(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.Event{Kind: model.EventTodoCreated, ListID: created.ListID, Payload: created})
	return created, nil
}

func baseTime(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}

// GetTodo returns a live todo from a list the caller belongs to.
func (s *SQLiteStore) GetTodo(ctx context.Context, userID, todoID string) (*model.Todo, error) {
	t, err := todoFor(ctx, s.db, userID, todoID, model.PermissionEditor)
	if err != nil {
		return nil, err
	}
	return loadTodo(ctx, s.db, t.ID)
}

// GetTodosForList returns the visible todos of a list. Completed todos
// older than the caller's auto-archive threshold are archived first, in
// the same transaction.
func (s *SQLiteStore) GetTodosForList(ctx context.Context, userID, listID string) ([]model.Todo, error) {
	var todos []model.Todo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := requireMember(ctx, tx, listID, userID, model.PermissionEditor); err != nil {
			return err
		}

		u, err := getUserBy(ctx, tx, "id", userID)
		if err != nil {
			return err
		}
		if u.AutoArchiveDays > 0 {
			now := s.utcNow()
			cutoff := now.AddDate(0, 0, -u.AutoArchiveDays)
			_, err := tx.ExecContext(ctx, `
				UPDATE todos SET archived_at = ?
				WHERE list_id = ? AND completed = 1
					AND archived_at IS NULL AND deleted_at IS NULL
					AND completed_at IS NOT NULL AND completed_at <= ?`,
				now, listID, cutoff)
			if err != nil {
				return fmt.Errorf("auto-archiving todos in %s: %w", listID, err)
			}
		}

		todos, err = selectTodos(ctx, tx,
			"t.list_id = ? AND t.deleted_at IS NULL AND t.archived_at IS NULL", listID)
		if err != nil {
			return err
		}
		return attachFiles(ctx, tx, todos)
	})
	if err != nil {
		return nil, err
	}
	return todos, nil
}

// UpdateTodo applies a partial patch. Completing a recurring todo spawns
// its successor in the same transaction.
func (s *SQLiteStore) UpdateTodo(ctx context.Context, userID, todoID string, patch model.TodoPatch) (*model.Todo, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("no fields to update: %w", ErrInvalidPayload)
	}
	if patch.ReminderMinutesBefore.Set {
		if err := checkReminder(patch.ReminderMinutesBefore.Value); err != nil {
			return nil, err
		}
	}

	var updated, spawned *model.Todo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		t, err := todoFor(ctx, tx, userID, todoID, model.PermissionEditor)
		if err != nil {
			return err
		}

		now := s.utcNow()
		set := map[string]any{"updated_at": now}

		if patch.Text != nil {
			text := strings.TrimSpace(*patch.Text)
			if text == "" || len(text) > 2000 {
				return fmt.Errorf("text must be 1 to 2000 characters: %w", ErrInvalidPayload)
			}
			set["text"] = text
		}
		if patch.Notes != nil {
			set["notes"] = *patch.Notes
		}
		if patch.Priority != nil {
			set["priority"] = model.NormalizePriority(*patch.Priority)
		}
		if patch.ReminderMinutesBefore.Set {
			set["reminder_minutes_before"] = patch.ReminderMinutesBefore.Value
		}
		if patch.AssignedTo.Set {
			if err := checkAssignee(ctx, tx, t.ListID, patch.AssignedTo.Value); err != nil {
				return err
			}
			set["assigned_to"] = patch.AssignedTo.Value
		}

		due := t.DueDate
		if patch.DueDate.Set {
			due = utcPtr(patch.DueDate.Value)
			set["due_date"] = due
		}

		recurring := t.IsRecurring
		if patch.IsRecurring != nil {
			recurring = *patch.IsRecurring
		}
		pattern := t.RecurrencePattern
		if patch.RecurrencePattern.Set {
			pattern = patch.RecurrencePattern.Value
		}
		switch {
		case recurring:
			if pattern == nil || !recurrence.Valid(*pattern) {
				return ErrInvalidRecurrence
			}
			if !t.IsRecurring || patch.RecurrencePattern.Set || patch.DueDate.Set {
				next := recurrence.Next(*pattern, baseTime(due, now))
				set["next_occurrence"] = next
			}
			set["is_recurring"] = 1
			set["recurrence_pattern"] = *pattern
		case t.IsRecurring || patch.IsRecurring != nil || patch.RecurrencePattern.Set:
			set["is_recurring"] = 0
			set["recurrence_pattern"] = nil
			set["next_occurrence"] = nil
		}

		completing := false
		if patch.Completed != nil && *patch.Completed != t.Completed {
			if *patch.Completed {
				open, err := countOpenChildren(ctx, tx, t.ID)
				if err != nil {
					return err
				}
				if open > 0 {
					return ErrIncompleteSubtasks
				}
				set["completed"] = 1
				set["completed_by"] = userID
				set["completed_at"] = now
				completing = true
			} else {
				set["completed"] = 0
				set["completed_by"] = nil
				set["completed_at"] = nil
			}
		}

		query, args, err := sq.Update("todos").SetMap(set).Where(sq.Eq{"id": t.ID}).ToSql()
		if err != nil {
			return fmt.Errorf("building todo update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("updating todo %s: %w", t.ID, err)
		}

		if completing && recurring {
			row, err := getTodoRow(ctx, tx, t.ID)
			if err != nil {
				return err
			}
			spawned, err = s.spawnSuccessor(ctx, tx, row, userID, now)
			if err != nil {
				return err
			}
			// The successor now carries the cadence.
			if _, err := tx.ExecContext(ctx,
				"UPDATE todos SET next_occurrence = NULL WHERE id = ?", t.ID); err != nil {
				return fmt.Errorf("handing off next occurrence of %s: %w", t.ID, err)
			}
		}

		updated, err = loadTodo(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.Event{Kind: model.EventTodoUpdated, ListID: updated.ListID, Payload: updated})
	if spawned != nil {
		s.notify(ctx, model.Event{Kind: model.EventTodoCreated, ListID: spawned.ListID, Payload: spawned})
	}
	return updated, nil
}

func countOpenChildren(ctx context.Context, q sqlx.QueryerContext, parentID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `
		SELECT COUNT(*) FROM todos
		WHERE parent_todo_id = ? AND completed = 0 AND deleted_at IS NULL`, parentID)
	if err != nil {
		return 0, fmt.Errorf("counting open subtasks of %s: %w", parentID, err)
	}
	return n, nil
}

func childIDs(ctx context.Context, q sqlx.QueryerContext, parentID, extra string, args ...any) ([]string, error) {
	var ids []string
	query := "SELECT id FROM todos WHERE parent_todo_id = ?" + extra + " ORDER BY sort_order, created_at, id"
	if err := sqlx.SelectContext(ctx, q, &ids, query, append([]any{parentID}, args...)...); err != nil {
		return nil, fmt.Errorf("listing subtasks of %s: %w", parentID, err)
	}
	return ids, nil
}

// DeleteTodo soft-deletes a todo and its live subtasks with one shared
// timestamp, so they restore together.
func (s *SQLiteStore) DeleteTodo(ctx context.Context, userID, todoID string) error {
	var t *model.Todo
	var removed []string
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		t, err = todoFor(ctx, tx, userID, todoID, model.PermissionEditor)
		if err != nil {
			return err
		}

		children, err := childIDs(ctx, tx, t.ID, " AND deleted_at IS NULL")
		if err != nil {
			return err
		}

		now := s.utcNow()
		_, err = tx.ExecContext(ctx, `
			UPDATE todos SET deleted_at = ?, archived_at = ?, updated_at = ?
			WHERE id = ? OR (parent_todo_id = ? AND deleted_at IS NULL)`,
			now, now, now, t.ID, t.ID)
		if err != nil {
			return fmt.Errorf("deleting todo %s: %w", t.ID, err)
		}
		removed = append(children, t.ID)
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range removed {
		s.notify(ctx, model.Event{Kind: model.EventTodoDeleted, ListID: t.ListID, Payload: model.DeletedRef{ID: id}})
	}
	return nil
}

// GetDeletedTodosForList returns todos deleted within the retention window.
func (s *SQLiteStore) GetDeletedTodosForList(ctx context.Context, userID, listID string) ([]model.Todo, error) {
	if _, err := requireMember(ctx, s.db, listID, userID, model.PermissionEditor); err != nil {
		return nil, err
	}
	cutoff := s.utcNow().Add(-RetentionWindow)
	todos, err := selectTodos(ctx, s.db,
		"t.list_id = ? AND t.deleted_at IS NOT NULL AND t.deleted_at > ?", listID, cutoff)
	if err != nil {
		return nil, err
	}
	if err := attachFiles(ctx, s.db, todos); err != nil {
		return nil, err
	}
	return todos, nil
}

// RestoreTodo brings back a soft-deleted todo within the retention window,
// together with the subtasks deleted alongside it. An archived todo is
// simply unarchived.
func (s *SQLiteStore) RestoreTodo(ctx context.Context, userID, todoID string) (*model.Todo, error) {
	if err := validID("todo", todoID); err != nil {
		return nil, err
	}

	var restored []model.Todo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		t, err := getTodoRow(ctx, tx, todoID)
		if err != nil {
			return err
		}
		m, err := membership(ctx, tx, t.ListID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("todo %s: %w", todoID, ErrNotFound)
		}
		if err := access.Require(m, model.PermissionEditor); err != nil {
			return err
		}

		now := s.utcNow()
		switch {
		case t.DeletedAt != nil:
			if !t.DeletedAt.After(now.Add(-RetentionWindow)) {
				return fmt.Errorf("todo %s past retention: %w", todoID, ErrNotFound)
			}
			if t.ParentTodoID != nil {
				parent, err := getTodoRow(ctx, tx, *t.ParentTodoID)
				if err != nil {
					return err
				}
				if parent.DeletedAt != nil {
					return ErrParentDeleted
				}
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE todos SET deleted_at = NULL, archived_at = NULL, updated_at = ?
				WHERE id = ? OR (parent_todo_id = ? AND deleted_at = ?)`,
				now, t.ID, t.ID, t.DeletedAt.UTC())
		case t.ArchivedAt != nil:
			_, err = tx.ExecContext(ctx,
				"UPDATE todos SET archived_at = NULL, updated_at = ? WHERE id = ?", now, t.ID)
		default:
			return fmt.Errorf("todo %s is not deleted or archived: %w", todoID, ErrInvalidPayload)
		}
		if err != nil {
			return fmt.Errorf("restoring todo %s: %w", todoID, err)
		}

		restored, err = selectTodos(ctx, tx,
			"(t.id = ? OR (t.parent_todo_id = ? AND t.updated_at = ?)) AND t.deleted_at IS NULL AND t.archived_at IS NULL",
			t.ID, t.ID, now)
		if err != nil {
			return err
		}
		return attachFiles(ctx, tx, restored)
	})
	if err != nil {
		return nil, err
	}

	var out *model.Todo
	for i := range restored {
		if restored[i].ID == todoID {
			out = &restored[i]
		}
	}
	// Parent first so clients can nest the subtasks.
	if out != nil {
		s.notify(ctx, model.Event{Kind: model.EventTodoCreated, ListID: out.ListID, Payload: out})
	}
	for i := range restored {
		if restored[i].ID != todoID {
			s.notify(ctx, model.Event{Kind: model.EventTodoCreated, ListID: restored[i].ListID, Payload: &restored[i]})
		}
	}
	if out == nil {
		return nil, fmt.Errorf("todo %s: %w", todoID, ErrNotFound)
	}
	return out, nil
}

// PermanentlyDeleteTodo hard-deletes a todo in any state; subtasks go with
// it. The remaining siblings are re-densified.
func (s *SQLiteStore) PermanentlyDeleteTodo(ctx context.Context, userID, todoID string) error {
	if err := validID("todo", todoID); err != nil {
		return err
	}

	var t *model.Todo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		t, err = getTodoRow(ctx, tx, todoID)
		if err != nil {
			return err
		}
		m, err := membership(ctx, tx, t.ListID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("todo %s: %w", todoID, ErrNotFound)
		}
		if err := access.Require(m, model.PermissionEditor); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", t.ID); err != nil {
			return fmt.Errorf("permanently deleting todo %s: %w", t.ID, err)
		}
		return densifyGroup(ctx, tx, t.ListID, t.ParentTodoID, "")
	})
	if err != nil {
		return err
	}

	if t.DeletedAt == nil {
		s.notify(ctx, model.Event{Kind: model.EventTodoDeleted, ListID: t.ListID, Payload: model.DeletedRef{ID: t.ID}})
	}
	return nil
}

// DeleteAllDeletedTodosForList empties a list's trash.
func (s *SQLiteStore) DeleteAllDeletedTodosForList(ctx context.Context, userID, listID string) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := requireMember(ctx, tx, listID, userID, model.PermissionEditor); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			"DELETE FROM todos WHERE list_id = ? AND deleted_at IS NOT NULL", listID)
		if err != nil {
			return fmt.Errorf("emptying trash of %s: %w", listID, err)
		}
		n, _ = result.RowsAffected()
		return densifyList(ctx, tx, listID)
	})
	return n, err
}

// PurgeDeletedTodos hard-deletes todos whose retention window ended
// before now and re-densifies the lists they left.
func (s *SQLiteStore) PurgeDeletedTodos(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-RetentionWindow)

	var n int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var lists []string
		err := tx.SelectContext(ctx, &lists,
			"SELECT DISTINCT list_id FROM todos WHERE deleted_at IS NOT NULL AND deleted_at <= ?", cutoff)
		if err != nil {
			return fmt.Errorf("finding expired trash: %w", err)
		}
		if len(lists) == 0 {
			return nil
		}

		result, err := tx.ExecContext(ctx,
			"DELETE FROM todos WHERE deleted_at IS NOT NULL AND deleted_at <= ?", cutoff)
		if err != nil {
			return fmt.Errorf("purging deleted todos: %w", err)
		}
		n, _ = result.RowsAffected()

		for _, listID := range lists {
			if err := densifyList(ctx, tx, listID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
