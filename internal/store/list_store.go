package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/tido/internal/access"
	"github.com/nhle/tido/internal/model"
)

const maxListNameLen = 100

// insertList creates a list with creatorID as its admin.
func insertList(ctx context.Context, tx *sqlx.Tx, creatorID, name string, now time.Time) (*model.List, error) {
	l := model.List{
		ID:         uuid.New().String(),
		Name:       name,
		CreatedBy:  creatorID,
		CreatedAt:  now,
		Permission: model.PermissionAdmin,
	}

	_, err := tx.ExecContext(ctx,
		"INSERT INTO lists (id, name, created_by, created_at) VALUES (?, ?, ?, ?)",
		l.ID, l.Name, l.CreatedBy, l.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating list: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO list_members (list_id, user_id, permission, created_at) VALUES (?, ?, ?, ?)",
		l.ID, creatorID, model.PermissionAdmin, now,
	)
	if err != nil {
		return nil, fmt.Errorf("adding creator to list %s: %w", l.ID, err)
	}
	return &l, nil
}

func cleanListName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxListNameLen {
		return "", fmt.Errorf("list name must be 1 to %d characters: %w", maxListNameLen, ErrInvalidPayload)
	}
	return name, nil
}

// membership returns the caller's membership row, or nil if there is none.
func membership(ctx context.Context, q sqlx.QueryerContext, listID, userID string) (*model.Member, error) {
	var m model.Member
	err := sqlx.GetContext(ctx, q, &m, `
		SELECT m.list_id, m.user_id, u.username, m.permission, m.created_at
		FROM list_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.list_id = ? AND m.user_id = ?`, listID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking membership of %s in %s: %w", userID, listID, err)
	}
	return &m, nil
}

// requireMember fails closed: a missing membership is ErrAccessDenied.
func requireMember(ctx context.Context, q sqlx.QueryerContext, listID, userID string, need model.Permission) (*model.Member, error) {
	if err := validID("list", listID); err != nil {
		return nil, err
	}
	m, err := membership(ctx, q, listID, userID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(m, need); err != nil {
		return nil, fmt.Errorf("list %s: %w", listID, err)
	}
	return m, nil
}

// IsMember reports whether userID belongs to listID.
func (s *SQLiteStore) IsMember(ctx context.Context, listID, userID string) (bool, error) {
	m, err := membership(ctx, s.db, listID, userID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// CreateList creates a list owned by userID.
func (s *SQLiteStore) CreateList(ctx context.Context, userID, name string) (*model.List, error) {
	name, err := cleanListName(name)
	if err != nil {
		return nil, err
	}

	var l *model.List
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		l, err = insertList(ctx, tx, userID, name, s.utcNow())
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetUserLists returns the lists userID belongs to, either active or
// archived, newest first.
func (s *SQLiteStore) GetUserLists(ctx context.Context, userID string, archived bool) ([]model.List, error) {
	qb := sq.Select("l.id", "l.name", "l.created_by", "l.archived_at", "l.created_at", "m.permission").
		From("lists l").
		Join("list_members m ON m.list_id = l.id").
		Where(sq.Eq{"m.user_id": userID}).
		OrderBy("l.created_at DESC")
	if archived {
		qb = qb.Where(sq.NotEq{"l.archived_at": nil})
	} else {
		qb = qb.Where(sq.Eq{"l.archived_at": nil})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	var lists []model.List
	if err := s.db.SelectContext(ctx, &lists, query, args...); err != nil {
		return nil, fmt.Errorf("querying lists for %s: %w", userID, err)
	}
	return lists, nil
}

// GetList returns a list the caller belongs to. Non-members get
// ErrNotFound so the list's existence does not leak.
func (s *SQLiteStore) GetList(ctx context.Context, userID, listID string) (*model.List, error) {
	if err := validID("list", listID); err != nil {
		return nil, err
	}
	return getListFor(ctx, s.db, userID, listID)
}

func getListFor(ctx context.Context, q sqlx.QueryerContext, userID, listID string) (*model.List, error) {
	var l model.List
	err := sqlx.GetContext(ctx, q, &l, `
		SELECT l.id, l.name, l.created_by, l.archived_at, l.created_at, m.permission
		FROM lists l
		JOIN list_members m ON m.list_id = l.id AND m.user_id = ?
		WHERE l.id = ?`, userID, listID)
	if err != nil {
		return nil, notFound(err, "list", listID)
	}
	return &l, nil
}

// RenameList changes a list's name. Admins only.
func (s *SQLiteStore) RenameList(ctx context.Context, userID, listID, name string) (*model.List, error) {
	name, err := cleanListName(name)
	if err != nil {
		return nil, err
	}
	return s.updateList(ctx, userID, listID, "UPDATE lists SET name = ? WHERE id = ?", name, listID)
}

// ArchiveList hides a list from the default view. Admins only.
func (s *SQLiteStore) ArchiveList(ctx context.Context, userID, listID string) (*model.List, error) {
	return s.updateList(ctx, userID, listID,
		"UPDATE lists SET archived_at = ? WHERE id = ?", s.utcNow(), listID)
}

// RestoreList brings an archived list back. Admins only.
func (s *SQLiteStore) RestoreList(ctx context.Context, userID, listID string) (*model.List, error) {
	return s.updateList(ctx, userID, listID,
		"UPDATE lists SET archived_at = NULL WHERE id = ?", listID)
}

func (s *SQLiteStore) updateList(ctx context.Context, userID, listID, query string, args ...any) (*model.List, error) {
	var l *model.List
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := requireMember(ctx, tx, listID, userID, model.PermissionAdmin); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("updating list %s: %w", listID, err)
		}
		var err error
		l, err = getListFor(ctx, tx, userID, listID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.Event{Kind: model.EventListUpdated, ListID: listID, Payload: l})
	return l, nil
}

// DeleteList permanently removes an archived list and everything in it.
// Admins only.
func (s *SQLiteStore) DeleteList(ctx context.Context, userID, listID string) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := requireMember(ctx, tx, listID, userID, model.PermissionAdmin); err != nil {
			return err
		}
		l, err := getListFor(ctx, tx, userID, listID)
		if err != nil {
			return err
		}
		if l.ArchivedAt == nil {
			return ErrListNotArchived
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM lists WHERE id = ?", listID); err != nil {
			return fmt.Errorf("deleting list %s: %w", listID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, model.Event{Kind: model.EventListUpdated, ListID: listID, Payload: model.DeletedRef{ID: listID}})
	return nil
}

// GetListMembers returns the members of a list the caller belongs to.
func (s *SQLiteStore) GetListMembers(ctx context.Context, userID, listID string) ([]model.Member, error) {
	if _, err := requireMember(ctx, s.db, listID, userID, model.PermissionEditor); err != nil {
		return nil, err
	}

	var members []model.Member
	err := s.db.SelectContext(ctx, &members, `
		SELECT m.list_id, m.user_id, u.username, m.permission, m.created_at
		FROM list_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.list_id = ?
		ORDER BY m.created_at, u.username`, listID)
	if err != nil {
		return nil, fmt.Errorf("querying members of %s: %w", listID, err)
	}
	return members, nil
}

// RemoveMember takes memberID out of a list. Admins may remove anyone but
// the creator; any member may remove themselves. Todos assigned to the
// removed member are unassigned.
func (s *SQLiteStore) RemoveMember(ctx context.Context, actorID, listID, memberID string) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		need := model.PermissionAdmin
		if actorID == memberID {
			need = model.PermissionEditor
		}
		if _, err := requireMember(ctx, tx, listID, actorID, need); err != nil {
			return err
		}
		if err := s.guardCreator(ctx, tx, listID, memberID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"DELETE FROM list_members WHERE list_id = ? AND user_id = ?", listID, memberID)
		if err != nil {
			return fmt.Errorf("removing member %s from %s: %w", memberID, listID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("member %s: %w", memberID, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE todos SET assigned_to = NULL, updated_at = ? WHERE list_id = ? AND assigned_to = ?",
			s.utcNow(), listID, memberID)
		if err != nil {
			return fmt.Errorf("clearing assignments of %s: %w", memberID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, model.Event{Kind: model.EventListUpdated, ListID: listID, Payload: model.MemberRemoved{
		ID: listID, RemovedUserID: memberID,
	}})
	return nil
}

// SetMemberPermission changes a member's level. Admins only; the creator
// always stays admin.
func (s *SQLiteStore) SetMemberPermission(ctx context.Context, actorID, listID, memberID string, perm model.Permission) error {
	if !perm.Valid() {
		return ErrInvalidPermission
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := requireMember(ctx, tx, listID, actorID, model.PermissionAdmin); err != nil {
			return err
		}
		if err := s.guardCreator(ctx, tx, listID, memberID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"UPDATE list_members SET permission = ? WHERE list_id = ? AND user_id = ?",
			perm, listID, memberID)
		if err != nil {
			return fmt.Errorf("updating permission of %s in %s: %w", memberID, listID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("member %s: %w", memberID, ErrNotFound)
		}
		return nil
	})
}

func (s *SQLiteStore) guardCreator(ctx context.Context, tx *sqlx.Tx, listID, userID string) error {
	var creator string
	if err := tx.GetContext(ctx, &creator, "SELECT created_by FROM lists WHERE id = ?", listID); err != nil {
		return notFound(err, "list", listID)
	}
	if creator == userID {
		return ErrCreatorMembership
	}
	return nil
}
