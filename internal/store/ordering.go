package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/tido/internal/model"
)

// A sibling group is every todo sharing (list_id, parent_todo_id), with a
// NULL parent as its own key. Deleted and archived rows keep their slot so
// a restore lands back in place. Within a group sort_order is dense: 0..n-1,
// ties broken by creation time.

// nextSortOrder returns the append position of a group.
func nextSortOrder(ctx context.Context, q sqlx.QueryerContext, listID string, parentID *string) (int, error) {
	var next int
	err := sqlx.GetContext(ctx, q, &next, `
		SELECT COALESCE(MAX(sort_order) + 1, 0) FROM todos
		WHERE list_id = ? AND parent_todo_id IS ?`, listID, parentID)
	if err != nil {
		return 0, fmt.Errorf("getting next sort_order: %w", err)
	}
	return next, nil
}

// groupIDs returns a group's ids in order, leaving out excludeID.
func groupIDs(ctx context.Context, q sqlx.QueryerContext, listID string, parentID *string, excludeID string) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, q, &ids, `
		SELECT id FROM todos
		WHERE list_id = ? AND parent_todo_id IS ? AND id != ?
		ORDER BY sort_order, created_at, id`, listID, parentID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("listing sibling group: %w", err)
	}
	return ids, nil
}

// writeOrder assigns positions 0..n-1 to ids.
func writeOrder(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	for i, id := range ids {
		_, err := tx.ExecContext(ctx,
			"UPDATE todos SET sort_order = ? WHERE id = ? AND sort_order != ?", i, id, i)
		if err != nil {
			return fmt.Errorf("writing sort_order of %s: %w", id, err)
		}
	}
	return nil
}

// densifyGroup closes gaps and resolves duplicates in a group.
func densifyGroup(ctx context.Context, tx *sqlx.Tx, listID string, parentID *string, excludeID string) error {
	ids, err := groupIDs(ctx, tx, listID, parentID, excludeID)
	if err != nil {
		return err
	}
	return writeOrder(ctx, tx, ids)
}

// densifyList densifies every group of a list.
func densifyList(ctx context.Context, tx *sqlx.Tx, listID string) error {
	var parents []sql.NullString
	err := tx.SelectContext(ctx, &parents,
		"SELECT DISTINCT parent_todo_id FROM todos WHERE list_id = ?", listID)
	if err != nil {
		return fmt.Errorf("listing groups of %s: %w", listID, err)
	}
	for _, p := range parents {
		var pid *string
		if p.Valid {
			pid = &p.String
		}
		if err := densifyGroup(ctx, tx, listID, pid, ""); err != nil {
			return err
		}
	}
	return nil
}

type groupKey struct {
	parent string
	root   bool
}

func keyOf(parentID *string) groupKey {
	if parentID == nil {
		return groupKey{root: true}
	}
	return groupKey{parent: *parentID}
}

func (k groupKey) parentID() *string {
	if k.root {
		return nil
	}
	p := k.parent
	return &p
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ReorderTodos writes caller-supplied positions within sibling groups of a
// list, then re-densifies every touched group so positions stay distinct.
// A reorder never changes a todo's parent.
func (s *SQLiteStore) ReorderTodos(ctx context.Context, userID, listID string, items []model.ReorderItem) ([]model.Todo, error) {
	if len(items) == 0 {
		_, err := requireMember(ctx, s.db, listID, userID, model.PermissionEditor)
		return nil, err
	}

	var changed []model.Todo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := requireMember(ctx, tx, listID, userID, model.PermissionEditor); err != nil {
			return err
		}

		now := s.utcNow()
		touched := make(map[groupKey]bool)
		for _, item := range items {
			if err := validID("todo", item.ID); err != nil {
				return err
			}
			var row struct {
				ListID   string  `db:"list_id"`
				ParentID *string `db:"parent_todo_id"`
			}
			err := tx.GetContext(ctx, &row,
				"SELECT list_id, parent_todo_id FROM todos WHERE id = ?", item.ID)
			if err != nil {
				return notFound(err, "todo", item.ID)
			}
			if row.ListID != listID {
				return fmt.Errorf("todo %s is not in list %s: %w", item.ID, listID, ErrInvalidPayload)
			}
			if !sameParent(row.ParentID, item.ParentTodoID) {
				return ErrCannotChangeParentViaReorder
			}

			_, err = tx.ExecContext(ctx,
				"UPDATE todos SET sort_order = ?, updated_at = ? WHERE id = ?",
				item.SortOrder, now, item.ID)
			if err != nil {
				return fmt.Errorf("reordering todo %s: %w", item.ID, err)
			}
			touched[keyOf(row.ParentID)] = true
		}

		for k := range touched {
			pid := k.parentID()
			if err := densifyGroup(ctx, tx, listID, pid, ""); err != nil {
				return err
			}
			group, err := selectTodos(ctx, tx,
				"t.list_id = ? AND t.parent_todo_id IS ? AND t.deleted_at IS NULL AND t.archived_at IS NULL",
				listID, pid)
			if err != nil {
				return err
			}
			changed = append(changed, group...)
		}
		return attachFiles(ctx, tx, changed)
	})
	if err != nil {
		return nil, err
	}

	for i := range changed {
		s.notify(ctx, model.Event{Kind: model.EventTodoUpdated, ListID: listID, Payload: &changed[i]})
	}
	return changed, nil
}

// MoveTodo relocates a todo to another list and/or parent at a position.
// The source group is closed up, the index is clamped to the destination
// group, and subtasks follow their parent across lists. An assignee who is
// not a member of the destination list is cleared.
func (s *SQLiteStore) MoveTodo(ctx context.Context, userID string, req model.MoveRequest) (*model.Todo, error) {
	if err := validID("list", req.TargetListID); err != nil {
		return nil, err
	}

	var (
		src      *model.Todo
		moved    *model.Todo
		children []model.Todo
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		src, err = todoFor(ctx, tx, userID, req.TodoID, model.PermissionEditor)
		if err != nil {
			return err
		}
		if _, err := requireMember(ctx, tx, req.TargetListID, userID, model.PermissionEditor); err != nil {
			return err
		}

		if req.TargetParent != nil {
			if err := validID("parent todo", *req.TargetParent); err != nil {
				return err
			}
			if *req.TargetParent == src.ID {
				return ErrSelfParent
			}
			parent, err := getTodoRow(ctx, tx, *req.TargetParent)
			if err != nil {
				return err
			}
			if parent.DeletedAt != nil {
				return fmt.Errorf("parent todo %s: %w", parent.ID, ErrNotFound)
			}
			if parent.ListID != req.TargetListID {
				return ErrCrossListParent
			}
			if parent.IsSubtask() {
				return ErrSubtaskDepth
			}

			kids, err := childIDs(ctx, tx, src.ID, "")
			if err != nil {
				return err
			}
			if len(kids) > 0 {
				return ErrSubtaskDepth
			}
		}

		crossList := src.ListID != req.TargetListID
		assignee := src.AssignedTo
		if crossList && assignee != nil {
			m, err := membership(ctx, tx, req.TargetListID, *assignee)
			if err != nil {
				return err
			}
			if m == nil {
				assignee = nil
			}
		}

		now := s.utcNow()
		_, err = tx.ExecContext(ctx, `
			UPDATE todos SET list_id = ?, parent_todo_id = ?, assigned_to = ?, updated_at = ?
			WHERE id = ?`,
			req.TargetListID, req.TargetParent, assignee, now, src.ID)
		if err != nil {
			return fmt.Errorf("moving todo %s: %w", src.ID, err)
		}

		if crossList {
			_, err = tx.ExecContext(ctx, `
				UPDATE todos SET list_id = ?, updated_at = ?,
					assigned_to = CASE WHEN assigned_to IN (
						SELECT user_id FROM list_members WHERE list_id = ?
					) THEN assigned_to ELSE NULL END
				WHERE parent_todo_id = ?`,
				req.TargetListID, now, req.TargetListID, src.ID)
			if err != nil {
				return fmt.Errorf("moving subtasks of %s: %w", src.ID, err)
			}
		}

		if err := densifyGroup(ctx, tx, src.ListID, src.ParentTodoID, src.ID); err != nil {
			return err
		}

		dest, err := groupIDs(ctx, tx, req.TargetListID, req.TargetParent, src.ID)
		if err != nil {
			return err
		}
		idx := min(max(req.TargetIndex, 0), len(dest))
		ordered := make([]string, 0, len(dest)+1)
		ordered = append(ordered, dest[:idx]...)
		ordered = append(ordered, src.ID)
		ordered = append(ordered, dest[idx:]...)
		if err := writeOrder(ctx, tx, ordered); err != nil {
			return err
		}

		moved, err = loadTodo(ctx, tx, src.ID)
		if err != nil {
			return err
		}
		if crossList {
			children, err = selectTodos(ctx, tx,
				"t.parent_todo_id = ? AND t.deleted_at IS NULL AND t.archived_at IS NULL", src.ID)
			if err != nil {
				return err
			}
			return attachFiles(ctx, tx, children)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if src.ListID != moved.ListID {
		s.notify(ctx, model.Event{Kind: model.EventTodoDeleted, ListID: src.ListID, Payload: model.DeletedRef{ID: moved.ID}})
		s.notify(ctx, model.Event{Kind: model.EventTodoCreated, ListID: moved.ListID, Payload: moved})
		for i := range children {
			s.notify(ctx, model.Event{Kind: model.EventTodoDeleted, ListID: src.ListID, Payload: model.DeletedRef{ID: children[i].ID}})
			s.notify(ctx, model.Event{Kind: model.EventTodoCreated, ListID: moved.ListID, Payload: &children[i]})
		}
	} else {
		s.notify(ctx, model.Event{Kind: model.EventTodoUpdated, ListID: moved.ListID, Payload: moved})
	}
	return moved, nil
}
