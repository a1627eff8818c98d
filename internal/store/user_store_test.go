package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/store"
	"github.com/nhle/tido/internal/testutil"
)

func TestCreateUser_FirstAccountIsAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.admin.IsAdmin)
	assert.True(t, f.admin.IsApproved)

	bob, err := f.s.CreateUser(ctx, model.NewUser{Username: "bob", Email: "bob@example.com", Password: testutil.Password})
	require.NoError(t, err)
	assert.False(t, bob.IsAdmin)
	assert.False(t, bob.IsApproved)

	_, err = f.s.Authenticate(ctx, "bob", testutil.Password)
	require.ErrorIs(t, err, store.ErrPendingApproval)
	require.ErrorIs(t, err, store.ErrAccessDenied)

	require.NoError(t, f.s.ApproveUser(ctx, f.admin.ID, bob.ID))
	u, err := f.s.Authenticate(ctx, "bob", testutil.Password)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, u.ID)
}

func TestCreateUser_GetsPersonalList(t *testing.T) {
	f := newFixture(t)

	lists, err := f.s.GetUserLists(context.Background(), f.admin.ID, false)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "My Tasks", lists[0].Name)
	assert.Equal(t, model.PermissionAdmin, lists[0].Permission)
}

func TestCreateUser_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.CreateUser(ctx, model.NewUser{Username: "admin", Email: "other@example.com", Password: testutil.Password})
	require.ErrorIs(t, err, store.ErrUsernameTaken)
	require.ErrorIs(t, err, store.ErrDuplicateState)

	_, err = f.s.CreateUser(ctx, model.NewUser{Username: "x", Email: "x@example.com", Password: testutil.Password})
	require.ErrorIs(t, err, store.ErrInvalidPayload)

	_, err = f.s.CreateUser(ctx, model.NewUser{Username: "carol", Email: "not-an-email", Password: testutil.Password})
	require.ErrorIs(t, err, store.ErrInvalidPayload)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.Authenticate(ctx, "admin", "wrong password")
	require.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = f.s.Authenticate(ctx, "nobody", testutil.Password)
	require.ErrorIs(t, err, store.ErrUnauthorized)
}

func TestUpdatePreferences_Clamps(t *testing.T) {
	f := newFixture(t)

	u, err := f.s.UpdatePreferences(context.Background(), f.admin.ID, model.Preferences{
		DefaultTaskPriority:        "urgent",
		DefaultTaskDueOffsetDays:   1000,
		DefaultTaskReminderMinutes: ptr(-5),
		AutoArchiveDays:            3,
		WeekStartDay:               model.WeekStartMonday,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityMedium, u.DefaultTaskPriority)
	assert.Equal(t, 365, u.DefaultTaskDueOffsetDays)
	require.NotNil(t, u.DefaultTaskReminderMinutes)
	assert.Equal(t, 0, *u.DefaultTaskReminderMinutes)
	assert.Equal(t, 3, u.AutoArchiveDays)
	assert.Equal(t, model.WeekStartMonday, u.WeekStartDay)
}

func TestSiteAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := testutil.CreateUser(t, f.s, "bob")

	_, err := f.s.ListUsers(ctx, bob.ID)
	require.ErrorIs(t, err, store.ErrAccessDenied)

	users, err := f.s.ListUsers(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.ErrorIs(t, f.s.DeleteUser(ctx, f.admin.ID, f.admin.ID), store.ErrSelfDeletion)
	require.ErrorIs(t, f.s.SetUserAdmin(ctx, f.admin.ID, f.admin.ID, false), store.ErrSelfDeletion)

	require.NoError(t, f.s.SetUserAdmin(ctx, f.admin.ID, bob.ID, true))
	users, err = f.s.ListUsers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, f.s.DeleteUser(ctx, f.admin.ID, bob.ID))
	_, err = f.s.GetUser(ctx, bob.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.s.CreateSession(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(store.SessionTTL), sess.ExpiresAt)

	who, err := f.s.ResolveSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, who.UserID)
	assert.Equal(t, "admin", who.Username)
	assert.True(t, who.IsAdmin)

	_, err = f.s.ResolveSession(ctx, "bogus")
	require.ErrorIs(t, err, store.ErrUnauthorized)

	f.clock.Advance(store.SessionTTL)
	_, err = f.s.ResolveSession(ctx, sess.Token)
	require.ErrorIs(t, err, store.ErrUnauthorized)
}

func TestSessions_Logout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.s.CreateSession(ctx, f.admin.ID)
	require.NoError(t, err)
	require.NoError(t, f.s.DeleteSession(ctx, sess.Token))

	_, err = f.s.ResolveSession(ctx, sess.Token)
	require.ErrorIs(t, err, store.ErrUnauthorized)
}

func TestCleanExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.CreateSession(ctx, f.admin.ID)
	require.NoError(t, err)

	n, err := f.s.CleanExpiredSessions(ctx, epoch)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.s.CleanExpiredSessions(ctx, epoch.Add(store.SessionTTL+time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.s.CreateSession(ctx, f.admin.ID)
	require.NoError(t, err)

	raw, err := f.s.IssueToken(ctx, f.admin.ID, model.TokenPasswordReset)
	require.NoError(t, err)

	require.ErrorIs(t, f.s.ResetPassword(ctx, raw, "short"), store.ErrInvalidPayload)
	require.NoError(t, f.s.ResetPassword(ctx, raw, "a brand new secret"))

	_, err = f.s.Authenticate(ctx, "admin", "a brand new secret")
	require.NoError(t, err)

	_, err = f.s.ResolveSession(ctx, sess.Token)
	require.ErrorIs(t, err, store.ErrUnauthorized, "reset signs the user out")

	err = f.s.ResetPassword(ctx, raw, "yet another secret")
	require.ErrorIs(t, err, store.ErrInvalidToken, "tokens are single use")
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw, err := f.s.IssueToken(ctx, f.admin.ID, model.TokenPasswordReset)
	require.NoError(t, err)

	f.clock.Advance(model.TokenPasswordReset.TTL())
	require.ErrorIs(t, f.s.ResetPassword(ctx, raw, "a brand new secret"), store.ErrInvalidToken)

	f.clock.Advance(-time.Minute)
	require.ErrorIs(t, f.s.ResetPassword(ctx, raw, "a brand new secret"), store.ErrInvalidToken,
		"an expired token stays spent")
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.s.IssueToken(ctx, f.admin.ID, model.TokenEmailVerification)
	require.NoError(t, err)
	second, err := f.s.IssueToken(ctx, f.admin.ID, model.TokenEmailVerification)
	require.NoError(t, err)

	_, err = f.s.VerifyEmail(ctx, first)
	require.ErrorIs(t, err, store.ErrInvalidToken, "reissuing replaces older tokens")

	userID, err := f.s.VerifyEmail(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, userID)

	u, err := f.s.GetUser(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
}

func TestCleanExpiredTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.IssueToken(ctx, f.admin.ID, model.TokenPasswordReset)
	require.NoError(t, err)

	n, err := f.s.CleanExpiredTokens(ctx, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
