package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/store"
	"github.com/nhle/tido/internal/testutil"
)

func TestNonMemberAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mallory := testutil.CreateUser(t, f.s, "mallory")

	l := f.list(t, f.admin, "Private")
	td := f.todo(t, f.admin, l.ID, "secret", nil)

	_, err := f.s.GetList(ctx, mallory.ID, l.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.s.GetTodosForList(ctx, mallory.ID, l.ID)
	require.ErrorIs(t, err, store.ErrAccessDenied)

	_, err = f.s.CreateTodo(ctx, mallory.ID, model.NewTodo{ListID: l.ID, Text: "intrusion"})
	require.ErrorIs(t, err, store.ErrAccessDenied)

	_, err = f.s.GetTodo(ctx, mallory.ID, td.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.s.UpdateTodo(ctx, mallory.ID, td.ID, model.TodoPatch{Text: ptr("mine")})
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, f.s.DeleteTodo(ctx, mallory.ID, td.ID), store.ErrNotFound)

	_, err = f.s.ReorderTodos(ctx, mallory.ID, l.ID, []model.ReorderItem{{ID: td.ID, SortOrder: 0}})
	require.ErrorIs(t, err, store.ErrAccessDenied)

	ok, err := f.s.IsMember(ctx, l.ID, mallory.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := f.list(t, f.admin, "  Groceries  ")
	assert.Equal(t, "Groceries", l.Name)

	_, err := f.s.CreateList(ctx, f.admin.ID, "   ")
	require.ErrorIs(t, err, store.ErrInvalidPayload)

	renamed, err := f.s.RenameList(ctx, f.admin.ID, l.ID, "Shopping")
	require.NoError(t, err)
	assert.Equal(t, "Shopping", renamed.Name)

	require.ErrorIs(t, f.s.DeleteList(ctx, f.admin.ID, l.ID), store.ErrListNotArchived)

	archived, err := f.s.ArchiveList(ctx, f.admin.ID, l.ID)
	require.NoError(t, err)
	assert.NotNil(t, archived.ArchivedAt)

	active, err := f.s.GetUserLists(ctx, f.admin.ID, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	old, err := f.s.GetUserLists(ctx, f.admin.ID, true)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, l.ID, old[0].ID)

	f.events.reset()
	require.NoError(t, f.s.DeleteList(ctx, f.admin.ID, l.ID))
	_, err = f.s.GetList(ctx, f.admin.ID, l.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventListUpdated, events[0].Kind)
	assert.Equal(t, model.DeletedRef{ID: l.ID}, events[0].Payload)
}

func TestListAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := testutil.CreateUser(t, f.s, "bob")

	l := f.list(t, f.admin, "Team")
	testutil.Invite(t, f.s, f.admin.ID, l.ID, bob, model.PermissionEditor)

	_, err := f.s.RenameList(ctx, bob.ID, l.ID, "Bob's")
	require.ErrorIs(t, err, store.ErrAccessDenied)
	_, err = f.s.ArchiveList(ctx, bob.ID, l.ID)
	require.ErrorIs(t, err, store.ErrAccessDenied)
	_, err = f.s.CreateInvitation(ctx, bob.ID, l.ID, "admin", model.PermissionEditor)
	require.ErrorIs(t, err, store.ErrAccessDenied)

	_, err = f.s.CreateTodo(ctx, bob.ID, model.NewTodo{ListID: l.ID, Text: "editors can add todos"})
	require.NoError(t, err)
}

func TestInvitations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := testutil.CreateUser(t, f.s, "bob")
	l := f.list(t, f.admin, "Team")

	_, err := f.s.CreateInvitation(ctx, f.admin.ID, l.ID, "bob", "owner")
	require.ErrorIs(t, err, store.ErrInvalidPermission)

	_, err = f.s.CreateInvitation(ctx, f.admin.ID, l.ID, "nobody", "")
	require.ErrorIs(t, err, store.ErrNotFound)

	inv, err := f.s.CreateInvitation(ctx, f.admin.ID, l.ID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, model.PermissionEditor, inv.Permission)
	assert.Equal(t, "Team", inv.ListName)
	assert.Equal(t, "admin", inv.InviterUsername)

	_, err = f.s.CreateInvitation(ctx, f.admin.ID, l.ID, "bob", model.PermissionAdmin)
	require.ErrorIs(t, err, store.ErrInvitationPending)

	pending, err := f.s.GetUserInvitations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.s.AcceptInvitation(ctx, f.admin.ID, inv.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "only the invitee can respond")

	joined, err := f.s.AcceptInvitation(ctx, bob.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, joined.ID)
	assert.Equal(t, model.PermissionEditor, joined.Permission)

	_, err = f.s.AcceptInvitation(ctx, bob.ID, inv.ID)
	require.ErrorIs(t, err, store.ErrInvitationProcessed)

	_, err = f.s.CreateInvitation(ctx, f.admin.ID, l.ID, "bob", "")
	require.ErrorIs(t, err, store.ErrAlreadyMember)

	members, err := f.s.GetListMembers(ctx, bob.ID, l.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestRejectInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := testutil.CreateUser(t, f.s, "bob")
	l := f.list(t, f.admin, "Team")

	inv, err := f.s.CreateInvitation(ctx, f.admin.ID, l.ID, "bob", "")
	require.NoError(t, err)
	require.NoError(t, f.s.RejectInvitation(ctx, bob.ID, inv.ID))

	ok, err := f.s.IsMember(ctx, l.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.s.CreateInvitation(ctx, f.admin.ID, l.ID, "bob", "")
	require.NoError(t, err, "a rejected invitation can be re-sent")
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := testutil.CreateUser(t, f.s, "bob")
	carol := testutil.CreateUser(t, f.s, "carol")
	l := f.list(t, f.admin, "Team")
	testutil.Invite(t, f.s, f.admin.ID, l.ID, bob, model.PermissionEditor)
	testutil.Invite(t, f.s, f.admin.ID, l.ID, carol, model.PermissionEditor)

	td, err := f.s.CreateTodo(ctx, f.admin.ID, model.NewTodo{ListID: l.ID, Text: "chore", AssignedTo: &bob.ID})
	require.NoError(t, err)
	require.NotNil(t, td.AssignedToUsername)
	assert.Equal(t, "bob", *td.AssignedToUsername)

	require.ErrorIs(t, f.s.RemoveMember(ctx, carol.ID, l.ID, bob.ID), store.ErrAccessDenied)
	require.ErrorIs(t, f.s.RemoveMember(ctx, f.admin.ID, l.ID, f.admin.ID), store.ErrCreatorMembership)
	require.ErrorIs(t, f.s.SetMemberPermission(ctx, f.admin.ID, l.ID, f.admin.ID, model.PermissionEditor), store.ErrCreatorMembership)

	require.NoError(t, f.s.RemoveMember(ctx, f.admin.ID, l.ID, bob.ID))
	got, err := f.s.GetTodo(ctx, f.admin.ID, td.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssignedTo)

	require.NoError(t, f.s.RemoveMember(ctx, carol.ID, l.ID, carol.ID), "members may leave")
	ok, err := f.s.IsMember(ctx, l.ID, carol.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetMemberPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := testutil.CreateUser(t, f.s, "bob")
	l := f.list(t, f.admin, "Team")
	testutil.Invite(t, f.s, f.admin.ID, l.ID, bob, model.PermissionEditor)

	require.ErrorIs(t, f.s.SetMemberPermission(ctx, f.admin.ID, l.ID, bob.ID, "owner"), store.ErrInvalidPermission)
	require.NoError(t, f.s.SetMemberPermission(ctx, f.admin.ID, l.ID, bob.ID, model.PermissionAdmin))

	_, err := f.s.RenameList(ctx, bob.ID, l.ID, "Bob's now")
	require.NoError(t, err)
}
