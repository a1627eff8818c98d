package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/tido/internal/logging"
	"github.com/nhle/tido/internal/model"
)

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return newStore(sqlx.NewDb(db, "sqlite"), WithLogger(logging.Discard())), mock
}

func TestWithTx_Commits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE todos SET sort_order`).
		WithArgs(0, "a", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.withTx(context.Background(), func(tx *sqlx.Tx) error {
		return writeOrder(context.Background(), tx, []string{"a"})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE todos SET sort_order`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.withTx(context.Background(), func(tx *sqlx.Tx) error {
		return writeOrder(context.Background(), tx, []string{"a", "b"})
	})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginFails(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(assert.AnError)

	called := false
	err := s.withTx(context.Background(), func(*sqlx.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceQueries(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at <= \?`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))
	n, err := s.CleanExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	cutoff := now.Add(-RetentionWindow)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT DISTINCT list_id FROM todos WHERE deleted_at IS NOT NULL AND deleted_at <= \?`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"list_id"}).AddRow("l-1"))
	mock.ExpectExec(`DELETE FROM todos WHERE deleted_at IS NOT NULL AND deleted_at <= \?`).
		WithArgs(cutoff).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()
	_, err = s.PurgeDeletedTodos(ctx, now)
	require.ErrorIs(t, err, assert.AnError)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT DISTINCT list_id FROM todos`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"list_id"}))
	mock.ExpectCommit()
	n, err = s.PurgeDeletedTodos(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveSession_EmptyToken(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.ResolveSession(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorKinds(t *testing.T) {
	conds := []*Condition{
		ErrInvalidAssignee, ErrInvalidRecurrence, ErrInvalidPermission,
		ErrCannotChangeParentViaReorder, ErrSubtaskDepth, ErrSelfParent,
		ErrCrossListParent, ErrIncompleteSubtasks, ErrListNotArchived,
		ErrCreatorMembership, ErrSelfDeletion, ErrAlreadyMember,
		ErrInvitationPending, ErrInvitationProcessed, ErrUsernameTaken,
		ErrPendingApproval, ErrInvalidToken, ErrParentDeleted, ErrNotAuthor,
	}
	kinds := []error{
		ErrAccessDenied, ErrNotFound, ErrInvalidPayload,
		ErrInvariantViolation, ErrDuplicateState, ErrUnauthorized,
	}

	for _, c := range conds {
		t.Run(c.Code, func(t *testing.T) {
			matched := 0
			for _, k := range kinds {
				if errors.Is(c, k) {
					matched++
				}
			}
			assert.Equal(t, 1, matched, "a condition belongs to exactly one kind")

			got, ok := AsCondition(wrapf(c))
			require.True(t, ok)
			assert.Equal(t, c.Code, got.Code)
		})
	}
}

func wrapf(err error) error {
	return errors.Join(errors.New("context"), err)
}

func TestStoredName(t *testing.T) {
	assert.Regexp(t, `^[0-9a-f-]{36}\.png$`, storedName("Photo.PNG"))
	assert.Regexp(t, `^[0-9a-f-]{36}$`, storedName("README"))
	assert.Regexp(t, `^[0-9a-f-]{36}$`, storedName("weird."+string(make([]byte, 20))))
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\cv.docx`: "cv.docx",
		"bell\a.txt":          "bell.txt",
		"":                    "file",
		"/":                   "file",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeName(in), "input %q", in)
	}
}

func TestNotify_SkipsWithoutNotifier(t *testing.T) {
	s, _ := newMockStore(t)
	assert.NotPanics(t, func() {
		s.notify(context.Background(), model.Event{Kind: model.EventTodoCreated, ListID: "l"})
	})
}
