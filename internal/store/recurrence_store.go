package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/recurrence"
)

// spawnSuccessor inserts the next instance of recurring todo t at the end
// of its sibling group. The due date advances one interval when set; the
// next occurrence advances from t's, or from now when t has none.
func (s *SQLiteStore) spawnSuccessor(ctx context.Context, tx *sqlx.Tx, t *model.Todo, creatorID string, now time.Time) (*model.Todo, error) {
	if t.RecurrencePattern == nil {
		return nil, nil
	}
	pattern := *t.RecurrencePattern

	next := recurrence.Next(pattern, baseTime(t.NextOccurrence, now))
	var due *time.Time
	if t.DueDate != nil {
		d := recurrence.Next(pattern, *t.DueDate)
		due = &d
	}

	assignee := t.AssignedTo
	if assignee != nil {
		m, err := membership(ctx, tx, t.ListID, *assignee)
		if err != nil {
			return nil, err
		}
		if m == nil {
			assignee = nil
		}
	}

	order, err := nextSortOrder(ctx, tx, t.ListID, t.ParentTodoID)
	if err != nil {
		return nil, err
	}

	succ := model.Todo{
		ID:                    uuid.New().String(),
		ListID:                t.ListID,
		CreatedBy:             creatorID,
		Text:                  t.Text,
		DueDate:               due,
		ReminderMinutesBefore: t.ReminderMinutesBefore,
		Priority:              model.NormalizePriority(string(t.Priority)),
		AssignedTo:            assignee,
		IsRecurring:           true,
		RecurrencePattern:     &pattern,
		NextOccurrence:        &next,
		ParentTodoID:          t.ParentTodoID,
		SortOrder:             order,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := insertTodo(ctx, tx, &succ); err != nil {
		return nil, err
	}
	return loadTodo(ctx, tx, succ.ID)
}

// CheckRecurringTasksForList runs the recurrence catch-up for one list on
// behalf of a member.
func (s *SQLiteStore) CheckRecurringTasksForList(ctx context.Context, userID, listID string) ([]model.Todo, error) {
	if _, err := requireMember(ctx, s.db, listID, userID, model.PermissionEditor); err != nil {
		return nil, err
	}
	return s.catchUp(ctx, &listID, s.utcNow())
}

// RunRecurrenceSweep runs the recurrence catch-up across all lists and
// returns the number of successors spawned.
func (s *SQLiteStore) RunRecurrenceSweep(ctx context.Context, now time.Time) (int, error) {
	spawned, err := s.catchUp(ctx, nil, now.UTC())
	return len(spawned), err
}

// catchUp spawns one successor for every completed recurring todo whose
// next occurrence has passed, then advances that occurrence and the due
// date by one interval. Each row is handled in its own transaction after
// re-reading it, so a row is never advanced twice for the same occurrence.
func (s *SQLiteStore) catchUp(ctx context.Context, listID *string, now time.Time) ([]model.Todo, error) {
	const due = `
		is_recurring = 1 AND completed = 1 AND deleted_at IS NULL
		AND next_occurrence IS NOT NULL AND next_occurrence <= ?`

	var ids []string
	query := "SELECT id FROM todos WHERE" + due
	args := []any{now}
	if listID != nil {
		query += " AND list_id = ?"
		args = append(args, *listID)
	}
	if err := s.db.SelectContext(ctx, &ids, query+" ORDER BY next_occurrence, id", args...); err != nil {
		return nil, fmt.Errorf("finding due recurring todos: %w", err)
	}

	var (
		spawned []model.Todo
		errs    []error
	)
	for _, id := range ids {
		var succ *model.Todo
		err := s.withTx(ctx, func(tx *sqlx.Tx) error {
			var still int
			if err := tx.GetContext(ctx, &still,
				"SELECT COUNT(*) FROM todos WHERE id = ? AND"+due, id, now); err != nil {
				return fmt.Errorf("rechecking recurring todo %s: %w", id, err)
			}
			if still == 0 {
				return nil
			}

			t, err := getTodoRow(ctx, tx, id)
			if err != nil {
				return err
			}
			if t.RecurrencePattern == nil || !recurrence.Valid(*t.RecurrencePattern) {
				_, err := tx.ExecContext(ctx,
					"UPDATE todos SET next_occurrence = NULL WHERE id = ?", id)
				return err
			}

			succ, err = s.spawnSuccessor(ctx, tx, t, t.CreatedBy, now)
			if err != nil {
				return err
			}

			// The template moves with the series so the next catch-up
			// step spawns the following occurrence.
			advanced := recurrence.Next(*t.RecurrencePattern, *t.NextOccurrence)
			_, err = tx.ExecContext(ctx,
				"UPDATE todos SET next_occurrence = ?, due_date = ? WHERE id = ?",
				advanced.UTC(), succ.DueDate, id)
			if err != nil {
				return fmt.Errorf("advancing next occurrence of %s: %w", id, err)
			}
			return nil
		})
		if err != nil {
			s.logger.Error("recurrence catch-up failed", "todo_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if succ != nil {
			spawned = append(spawned, *succ)
			s.notify(ctx, model.Event{Kind: model.EventTodoCreated, ListID: succ.ListID, Payload: succ})
		}
	}
	return spawned, errors.Join(errs...)
}
