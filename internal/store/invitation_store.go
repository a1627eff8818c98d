package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/tido/internal/model"
)

const invitationColumns = `
	i.id, i.list_id, i.inviter_id, i.invitee_id, i.permission, i.status, i.created_at,
	l.name AS list_name, u.username AS inviter_username`

// CreateInvitation invites inviteeUsername to a list. Admins only. An
// empty permission defaults to editor.
func (s *SQLiteStore) CreateInvitation(
	ctx context.Context,
	inviterID, listID, inviteeUsername string,
	perm model.Permission,
) (*model.Invitation, error) {
	if perm == "" {
		perm = model.PermissionEditor
	}
	if !perm.Valid() {
		return nil, ErrInvalidPermission
	}

	var inv *model.Invitation
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := requireMember(ctx, tx, listID, inviterID, model.PermissionAdmin); err != nil {
			return err
		}

		invitee, err := getUserBy(ctx, tx, "username", inviteeUsername)
		if err != nil {
			return err
		}

		existing, err := membership(ctx, tx, listID, invitee.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyMember
		}

		var pending int
		err = tx.GetContext(ctx, &pending, `
			SELECT COUNT(*) FROM list_invitations
			WHERE list_id = ? AND invitee_id = ? AND status = ?`,
			listID, invitee.ID, model.InvitationPending)
		if err != nil {
			return fmt.Errorf("checking pending invitations: %w", err)
		}
		if pending > 0 {
			return ErrInvitationPending
		}

		id := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO list_invitations (id, list_id, inviter_id, invitee_id, permission, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, listID, inviterID, invitee.ID, perm, model.InvitationPending, s.utcNow(),
		)
		if isUniqueViolation(err) {
			return ErrInvitationPending
		}
		if err != nil {
			return fmt.Errorf("creating invitation: %w", err)
		}

		inv, err = getInvitation(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func getInvitation(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Invitation, error) {
	var inv model.Invitation
	err := sqlx.GetContext(ctx, q, &inv, `
		SELECT `+invitationColumns+`
		FROM list_invitations i
		JOIN lists l ON l.id = i.list_id
		JOIN users u ON u.id = i.inviter_id
		WHERE i.id = ?`, id)
	if err != nil {
		return nil, notFound(err, "invitation", id)
	}
	return &inv, nil
}

// GetUserInvitations returns the pending invitations addressed to userID.
func (s *SQLiteStore) GetUserInvitations(ctx context.Context, userID string) ([]model.Invitation, error) {
	var invs []model.Invitation
	err := s.db.SelectContext(ctx, &invs, `
		SELECT `+invitationColumns+`
		FROM list_invitations i
		JOIN lists l ON l.id = i.list_id
		JOIN users u ON u.id = i.inviter_id
		WHERE i.invitee_id = ? AND i.status = ?
		ORDER BY i.created_at DESC`, userID, model.InvitationPending)
	if err != nil {
		return nil, fmt.Errorf("querying invitations for %s: %w", userID, err)
	}
	return invs, nil
}

// AcceptInvitation joins the invitee to the list and returns it.
func (s *SQLiteStore) AcceptInvitation(ctx context.Context, userID, invitationID string) (*model.List, error) {
	var l *model.List
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		inv, err := s.respond(ctx, tx, userID, invitationID, model.InvitationAccepted)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO list_members (list_id, user_id, permission, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (list_id, user_id) DO NOTHING`,
			inv.ListID, userID, inv.Permission, s.utcNow())
		if err != nil {
			return fmt.Errorf("adding member from invitation %s: %w", invitationID, err)
		}

		l, err = getListFor(ctx, tx, userID, inv.ListID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// RejectInvitation declines a pending invitation.
func (s *SQLiteStore) RejectInvitation(ctx context.Context, userID, invitationID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := s.respond(ctx, tx, userID, invitationID, model.InvitationRejected)
		return err
	})
}

// respond moves a pending invitation addressed to userID into status.
func (s *SQLiteStore) respond(
	ctx context.Context,
	tx *sqlx.Tx,
	userID, invitationID string,
	status model.InvitationStatus,
) (*model.Invitation, error) {
	if err := validID("invitation", invitationID); err != nil {
		return nil, err
	}

	var inv model.Invitation
	err := tx.GetContext(ctx, &inv, `
		SELECT id, list_id, inviter_id, invitee_id, permission, status, created_at
		FROM list_invitations WHERE id = ? AND invitee_id = ?`, invitationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invitation %s: %w", invitationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting invitation %s: %w", invitationID, err)
	}
	if inv.Status != model.InvitationPending {
		return nil, ErrInvitationProcessed
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE list_invitations SET status = ?, responded_at = ? WHERE id = ?",
		status, s.utcNow(), invitationID)
	if err != nil {
		return nil, fmt.Errorf("updating invitation %s: %w", invitationID, err)
	}
	inv.Status = status
	return &inv, nil
}
