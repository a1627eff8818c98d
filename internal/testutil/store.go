package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nhle/tido/internal/auth"
	"github.com/nhle/tido/internal/logging"
	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/store"
)

// Clock is a settable time source for stores under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes. Passwords are
// hashed at the minimum bcrypt cost to keep tests fast.
func NewTestStore(t *testing.T, opts ...store.Option) *store.SQLiteStore {
	t.Helper()

	base := []store.Option{
		store.WithLogger(logging.Discard()),
		store.WithHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
	}
	s, err := store.NewSQLiteStore(":memory:", append(base, opts...)...)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// CreateUser registers username with a fixed password and returns the
// account. The first user created in a store is an approved site admin;
// later users are approved through it.
func CreateUser(t *testing.T, s *store.SQLiteStore, username string) *model.User {
	t.Helper()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.NewUser{
		Username: username,
		Email:    username + "@example.com",
		Password: Password,
	})
	if err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	if u.IsApproved {
		return u
	}

	admin, err := s.GetUserByUsername(ctx, AdminName)
	if err != nil {
		t.Fatalf("finding site admin: %v", err)
	}
	if err := s.ApproveUser(ctx, admin.ID, u.ID); err != nil {
		t.Fatalf("approving %s: %v", username, err)
	}
	u.IsApproved = true
	return u
}

// Password is the password CreateUser registers accounts with.
const Password = "correct horse battery"

// AdminName is the username tests are expected to register first.
const AdminName = "admin"

// Invite adds member to listID at perm through the invitation flow.
func Invite(t *testing.T, s *store.SQLiteStore, adminID, listID string, member *model.User, perm model.Permission) {
	t.Helper()
	ctx := context.Background()

	inv, err := s.CreateInvitation(ctx, adminID, listID, member.Username, perm)
	if err != nil {
		t.Fatalf("inviting %s: %v", member.Username, err)
	}
	if _, err := s.AcceptInvitation(ctx, member.ID, inv.ID); err != nil {
		t.Fatalf("accepting invitation for %s: %v", member.Username, err)
	}
}
