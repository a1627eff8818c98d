// Package sweep runs the periodic maintenance jobs: recurrence catch-up,
// trash retention, and expiry of sessions and single-use tokens.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	gosync "sync"
	"time"

	"github.com/nhle/tido/internal/logging"
	"github.com/nhle/tido/internal/store"
)

// JobState is the state of one maintenance job.
type JobState int

const (
	JobIdle JobState = iota
	JobRunning
	JobError
)

func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobError:
		return "error"
	default:
		return "idle"
	}
}

// JobStatus holds the outcome of a job's most recent run.
type JobStatus struct {
	Name     string
	State    JobState
	LastRun  time.Time
	Affected int64
	Error    error
}

// Report counts what one pass changed.
type Report struct {
	RecurrencesSpawned int64
	TodosPurged        int64
	SessionsExpired    int64
	TokensExpired      int64
}

// jobTimeout bounds a single job run.
const jobTimeout = 2 * time.Minute

const defaultInterval = time.Hour

type job struct {
	name string
	run  func(ctx context.Context, now time.Time) (int64, error)
	into func(r *Report, n int64)
}

// Sweeper runs every job on a fixed interval and on demand.
type Sweeper struct {
	jobs     []job
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        gosync.Mutex
	statuses  map[string]*JobStatus
	running   bool
	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        gosync.WaitGroup
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock replaces the time source used to stamp each pass.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a sweeper over m. A non-positive interval falls back to one
// hour.
func New(m store.Maintainer, interval time.Duration, logger *slog.Logger, opts ...Option) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	s := &Sweeper{
		interval:  interval,
		logger:    logging.Component(logger, "sweep"),
		now:       time.Now,
		statuses:  make(map[string]*JobStatus),
		triggerCh: make(chan struct{}, 1),
	}
	s.jobs = []job{
		{
			name: "recurrence",
			run: func(ctx context.Context, now time.Time) (int64, error) {
				n, err := m.RunRecurrenceSweep(ctx, now)
				return int64(n), err
			},
			into: func(r *Report, n int64) { r.RecurrencesSpawned = n },
		},
		{name: "trash", run: m.PurgeDeletedTodos, into: func(r *Report, n int64) { r.TodosPurged = n }},
		{name: "sessions", run: m.CleanExpiredSessions, into: func(r *Report, n int64) { r.SessionsExpired = n }},
		{name: "tokens", run: m.CleanExpiredTokens, into: func(r *Report, n int64) { r.TokensExpired = n }},
	}
	for _, j := range s.jobs {
		s.statuses[j.name] = &JobStatus{Name: j.name}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a pass immediately and then every interval until Stop.
// Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stopCh)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
}

// Trigger asks the running loop for an extra pass. Requests made while one
// is already pending are coalesced.
func (s *Sweeper) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

func (s *Sweeper) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.pass(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.pass(ctx)
		case <-s.triggerCh:
			s.pass(ctx)
		}
	}
}

func (s *Sweeper) pass(ctx context.Context) {
	r, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("sweep finished with errors", "error", err)
		return
	}
	s.logger.Info("sweep finished",
		"recurrences_spawned", r.RecurrencesSpawned,
		"todos_purged", r.TodosPurged,
		"sessions_expired", r.SessionsExpired,
		"tokens_expired", r.TokensExpired,
	)
}

// RunOnce runs every job once. A failing job does not stop the others;
// their errors are joined.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var (
		r    Report
		errs []error
	)
	now := s.now().UTC()
	for _, j := range s.jobs {
		s.setStatus(j.name, JobRunning, 0, nil)

		jctx, cancel := context.WithTimeout(ctx, jobTimeout)
		n, err := j.run(jctx, now)
		cancel()

		if err != nil {
			s.setStatus(j.name, JobError, n, err)
			errs = append(errs, fmt.Errorf("%s: %w", j.name, err))
		} else {
			s.setStatus(j.name, JobIdle, n, nil)
		}
		j.into(&r, n)
	}
	return r, errors.Join(errs...)
}

// Statuses returns the status of every job, ordered by name.
func (s *Sweeper) Statuses() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Sweeper) setStatus(name string, state JobState, affected int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[name]
	if !ok {
		return
	}
	st.State = state
	st.Error = err
	if state != JobRunning {
		st.LastRun = s.now()
		st.Affected = affected
	}
}
