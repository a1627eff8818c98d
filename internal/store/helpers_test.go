package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/store"
	"github.com/nhle/tido/internal/testutil"
)

var epoch = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Notify(_ context.Context, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) all() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

type fixture struct {
	s      *store.SQLiteStore
	clock  *testutil.Clock
	events *recorder
	admin  *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewClock(epoch)
	s := testutil.NewTestStore(t, store.WithClock(clock.Now))
	rec := &recorder{}
	s.SetNotifier(rec)
	admin := testutil.CreateUser(t, s, testutil.AdminName)
	return &fixture{s: s, clock: clock, events: rec, admin: admin}
}

func (f *fixture) list(t *testing.T, owner *model.User, name string) *model.List {
	t.Helper()
	l, err := f.s.CreateList(context.Background(), owner.ID, name)
	require.NoError(t, err)
	return l
}

func (f *fixture) todo(t *testing.T, owner *model.User, listID, text string, parentID *string) *model.Todo {
	t.Helper()
	td, err := f.s.CreateTodo(context.Background(), owner.ID, model.NewTodo{
		ListID:       listID,
		Text:         text,
		ParentTodoID: parentID,
	})
	require.NoError(t, err)
	return td
}

// order returns the ids of a list's visible todos in one sibling group,
// checking that positions are distinct along the way.
func (f *fixture) order(t *testing.T, user *model.User, listID string, parentID *string) []string {
	t.Helper()
	todos, err := f.s.GetTodosForList(context.Background(), user.ID, listID)
	require.NoError(t, err)

	seen := make(map[int]string)
	var ids []string
	for _, td := range todos {
		if !sameParent(td.ParentTodoID, parentID) {
			continue
		}
		if other, dup := seen[td.SortOrder]; dup {
			t.Fatalf("todos %s and %s share sort_order %d", other, td.ID, td.SortOrder)
		}
		seen[td.SortOrder] = td.ID
		ids = append(ids, td.ID)
	}
	return ids
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func ptr[T any](v T) *T { return &v }
