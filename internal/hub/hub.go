// Package hub fans committed list mutations out to live client
// connections and relays ephemeral presence signals between members of
// the same list.
//
// Each list has a room. A connection enters a room only after the hub has
// resolved its session and confirmed list membership itself; identities
// claimed by clients are never trusted. Delivery is best effort: a slow
// connection whose outbox is full misses messages rather than stalling the
// room.
package hub

import (
	"context"
	"log/slog"
	gosync "sync"

	"github.com/nhle/tido/internal/logging"
	"github.com/nhle/tido/internal/model"
)

// SessionResolver maps a session token to the user it belongs to.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*model.SessionUser, error)
}

// MembershipChecker reports whether a user belongs to a list.
type MembershipChecker interface {
	IsMember(ctx context.Context, listID, userID string) (bool, error)
}

// DefaultOutboxSize is the number of messages buffered per connection.
const DefaultOutboxSize = 64

// Hub routes events between rooms of connections. The zero value is not
// usable; construct one with New.
type Hub struct {
	sessions   SessionResolver
	members    MembershipChecker
	logger     *slog.Logger
	outboxSize int

	mu    gosync.RWMutex
	rooms map[string]map[*conn]string // conn -> user id

	done      chan struct{}
	closeOnce gosync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithOutboxSize sets the per-connection send buffer.
func WithOutboxSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.outboxSize = n
		}
	}
}

// New creates a hub that authorizes joins with sessions and members.
func New(sessions SessionResolver, members MembershipChecker, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		sessions:   sessions,
		members:    members,
		logger:     logging.Component(logger, "hub"),
		outboxSize: DefaultOutboxSize,
		rooms:      make(map[string]map[*conn]string),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Notify pushes a committed mutation to every connection in the event's
// list room. It never blocks on a slow connection.
func (h *Hub) Notify(_ context.Context, ev model.Event) {
	msg := Message{Event: string(ev.Kind), Data: ev.Payload}
	delivered := h.broadcast(ev.ListID, msg, nil)
	h.logger.Debug("broadcast", "kind", ev.Kind, "list_id", ev.ListID, "recipients", delivered)

	if ev.Kind != model.EventListUpdated {
		return
	}
	switch p := ev.Payload.(type) {
	case model.MemberRemoved:
		h.evict(ev.ListID, p.RemovedUserID, "removed")
	case model.DeletedRef:
		if p.ID == ev.ListID {
			h.evict(ev.ListID, "", "deleted")
		}
	}
}

// Close disconnects every connection served by the hub. Serve returns for
// each of them once its goroutines have drained.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// RoomSize returns the number of connections subscribed to listID.
func (h *Hub) RoomSize(listID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[listID])
}

// broadcast sends msg to every connection in listID except skip and
// returns how many outboxes accepted it.
func (h *Hub) broadcast(listID string, msg Message, skip *conn) int {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.rooms[listID]))
	for c := range h.rooms[listID] {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.send(msg) {
			delivered++
		} else {
			h.logger.Warn("outbox full, dropping message", "conn_id", c.id, "event", msg.Event)
		}
	}
	return delivered
}

func (h *Hub) enter(listID string, c *conn, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[listID]
	if !ok {
		room = make(map[*conn]string)
		h.rooms[listID] = room
	}
	room[c] = userID
}

func (h *Hub) exit(listID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[listID]
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, listID)
	}
}

// evict asks the connections of userID in listID (all of them when userID
// is empty) to leave the room. Each connection leaves from its own
// processing goroutine.
func (h *Hub) evict(listID, userID, reason string) {
	h.mu.RLock()
	var targets []*conn
	for c, uid := range h.rooms[listID] {
		if userID == "" || uid == userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.requestEviction(eviction{listID: listID, reason: reason})
	}
}
