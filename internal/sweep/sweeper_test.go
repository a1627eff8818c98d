package sweep_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/tido/internal/logging"
	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/store"
	"github.com/nhle/tido/internal/sweep"
	"github.com/nhle/tido/internal/testutil"
)

type fakeMaintainer struct {
	mu       sync.Mutex
	passes   int
	seen     []time.Time
	purgeErr error
}

func (f *fakeMaintainer) CleanExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes++
	f.seen = append(f.seen, now)
	return 2, nil
}

func (f *fakeMaintainer) CleanExpiredTokens(context.Context, time.Time) (int64, error) {
	return 3, nil
}

func (f *fakeMaintainer) PurgeDeletedTodos(context.Context, time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	return 5, nil
}

func (f *fakeMaintainer) RunRecurrenceSweep(context.Context, time.Time) (int, error) {
	return 1, nil
}

func (f *fakeMaintainer) passCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passes
}

func TestRunOnceReport(t *testing.T) {
	now := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	m := &fakeMaintainer{}
	s := sweep.New(m, time.Hour, logging.Discard(), sweep.WithClock(func() time.Time { return now }))

	r, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sweep.Report{
		RecurrencesSpawned: 1,
		TodosPurged:        5,
		SessionsExpired:    2,
		TokensExpired:      3,
	}, r)
	require.Len(t, m.seen, 1)
	assert.Equal(t, time.UTC, m.seen[0].Location())

	for _, st := range s.Statuses() {
		assert.Equal(t, sweep.JobIdle, st.State, st.Name)
		assert.NoError(t, st.Error)
		assert.True(t, st.LastRun.Equal(now))
	}
}

func TestRunOnceKeepsGoingAfterFailure(t *testing.T) {
	boom := errors.New("disk full")
	m := &fakeMaintainer{purgeErr: boom}
	s := sweep.New(m, time.Hour, logging.Discard())

	r, err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "trash")
	assert.Equal(t, int64(2), r.SessionsExpired)
	assert.Equal(t, int64(3), r.TokensExpired)

	states := map[string]sweep.JobState{}
	for _, st := range s.Statuses() {
		states[st.Name] = st.State
	}
	assert.Equal(t, map[string]sweep.JobState{
		"recurrence": sweep.JobIdle,
		"sessions":   sweep.JobIdle,
		"tokens":     sweep.JobIdle,
		"trash":      sweep.JobError,
	}, states)
}

func TestStartTriggerStop(t *testing.T) {
	m := &fakeMaintainer{}
	s := sweep.New(m, time.Hour, logging.Discard())

	s.Start()
	s.Start()
	require.Eventually(t, func() bool { return m.passCount() == 1 }, time.Second, 5*time.Millisecond)

	s.Trigger()
	require.Eventually(t, func() bool { return m.passCount() == 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	s.Trigger()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, m.passCount())
}

func TestSweepPurgesExpiredTrash(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	clock := testutil.NewClock(start)
	st := testutil.NewTestStore(t, store.WithClock(clock.Now))
	admin := testutil.CreateUser(t, st, testutil.AdminName)

	l, err := st.CreateList(ctx, admin.ID, "Chores")
	require.NoError(t, err)
	todo, err := st.CreateTodo(ctx, admin.ID, model.NewTodo{ListID: l.ID, Text: "sweep"})
	require.NoError(t, err)
	require.NoError(t, st.DeleteTodo(ctx, admin.ID, todo.ID))

	s := sweep.New(st, time.Hour, logging.Discard(), sweep.WithClock(clock.Now))
	r, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, r.TodosPurged)

	clock.Advance(store.RetentionWindow + time.Minute)
	r, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.TodosPurged)

	deleted, err := st.GetDeletedTodosForList(ctx, admin.ID, l.ID)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}
