package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/google/uuid"

	"github.com/nhle/tido/internal/logging"
	"github.com/nhle/tido/internal/store"
)

// Transport carries frames for one client. Read and Write are each called
// from a single goroutine. Close must be idempotent and must unblock a
// pending Read.
type Transport interface {
	Read(ctx context.Context) (Inbound, error)
	Write(ctx context.Context, msg Message) error
	Close() error
}

type eviction struct {
	listID string
	reason string
}

// conn is the hub's handle on a connection. Only its outbox and eviction
// queue are shared; everything else lives in the processing goroutine.
type conn struct {
	id        string
	out       chan Message
	evictions chan eviction
}

func (c *conn) send(msg Message) bool {
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *conn) requestEviction(e eviction) {
	select {
	case c.evictions <- e:
	default:
	}
}

// state is a connection's identity and room, owned by its processing
// goroutine.
type state struct {
	userID   string
	username string
	listID   string
}

// Serve runs one connection until the transport fails, ctx is cancelled,
// or the hub is closed. Inbound events are handled strictly in order.
func (h *Hub) Serve(ctx context.Context, t Transport) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &conn{
		id:        uuid.New().String(),
		out:       make(chan Message, h.outboxSize),
		evictions: make(chan eviction, 1),
	}
	logger := h.logger.With("conn_id", c.id)
	logger.Debug("connection opened")

	var wg gosync.WaitGroup
	inbox := make(chan Inbound)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(inbox)
		for {
			in, err := t.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Debug("read ended", "error", err)
				}
				return
			}
			select {
			case inbox <- in:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case msg := <-c.out:
				if err := t.Write(ctx, msg); err != nil {
					logger.Debug("write failed", "error", err)
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
		case <-h.done:
			cancel()
		}
		t.Close()
	}()

	st := &state{}
loop:
	for {
		select {
		case in, ok := <-inbox:
			if !ok {
				break loop
			}
			h.handle(ctx, c, st, in)
		case ev := <-c.evictions:
			if st.listID == ev.listID {
				h.leave(c, st)
				c.send(Message{Event: EventLeft, Data: RoomChange{ListID: ev.listID, Reason: ev.reason}})
			}
		case <-ctx.Done():
			break loop
		}
	}

	h.leave(c, st)
	cancel()
	wg.Wait()
	logger.Debug("connection closed")
}

func (h *Hub) handle(ctx context.Context, c *conn, st *state, in Inbound) {
	var err error
	switch in.Event {
	case "":
		err = errMalformed
	case EventJoinList:
		err = h.join(ctx, c, st, in.Data)
	case EventLeaveList:
		err = h.leaveRequest(c, st, in.Data)
	default:
		relay, ok := presenceRelays[in.Event]
		if !ok {
			err = fmt.Errorf("%w: %q", errUnknownEvent, in.Event)
			break
		}
		err = h.relay(c, st, relay, in.Data)
	}
	if err == nil {
		return
	}

	code := errorCode(err)
	msg := err.Error()
	if code == "internal_error" {
		msg = "internal error"
	}
	c.send(Message{Event: EventError, Data: ErrorPayload{Event: in.Event, Code: code, Message: msg}})
}

// join admits the connection to a list room after re-resolving the session
// and checking membership. Joining another list leaves the current one.
func (h *Hub) join(ctx context.Context, c *conn, st *state, data json.RawMessage) error {
	var req JoinRequest
	if err := json.Unmarshal(data, &req); err != nil || req.SessionID == "" || req.ListID == "" {
		return errMalformed
	}

	who, err := h.sessions.ResolveSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrUnauthorized) {
			logging.Security(h.logger, "room join with invalid session",
				"conn_id", c.id, "list_id", req.ListID)
			return errUnauthorized
		}
		h.logger.Error("resolving session failed", "conn_id", c.id, "error", err)
		return fmt.Errorf("resolving session: %w", err)
	}

	ok, err := h.members.IsMember(ctx, req.ListID, who.UserID)
	if err != nil {
		h.logger.Error("checking membership failed", "conn_id", c.id, "list_id", req.ListID, "error", err)
		return fmt.Errorf("checking membership: %w", err)
	}
	if !ok {
		logging.Security(h.logger, "room join without membership",
			"conn_id", c.id, "user_id", who.UserID, "list_id", req.ListID)
		return errNotMember
	}

	if st.listID == req.ListID && st.userID == who.UserID {
		c.send(Message{Event: EventJoined, Data: RoomChange{ListID: req.ListID}})
		return nil
	}
	h.leave(c, st)

	st.userID, st.username, st.listID = who.UserID, who.Username, req.ListID
	h.enter(req.ListID, c, who.UserID)

	// A removal committed between the first check and enter found nothing
	// to evict, so membership is confirmed again while the connection is
	// visible to evict.
	ok, err = h.members.IsMember(ctx, req.ListID, who.UserID)
	if err != nil || !ok {
		h.exit(req.ListID, c)
		*st = state{}
		if err != nil {
			h.logger.Error("checking membership failed", "conn_id", c.id, "list_id", req.ListID, "error", err)
			return fmt.Errorf("checking membership: %w", err)
		}
		logging.Security(h.logger, "membership revoked during room join",
			"conn_id", c.id, "user_id", who.UserID, "list_id", req.ListID)
		return errNotMember
	}

	c.send(Message{Event: EventJoined, Data: RoomChange{ListID: req.ListID}})
	h.broadcast(req.ListID, Message{Event: EventUserJoined, Data: Occupant{
		UserID: st.userID, Username: st.username, ConnID: c.id,
	}}, c)

	h.logger.Info("joined room", "conn_id", c.id, "user_id", st.userID, "list_id", st.listID)
	return nil
}

func (h *Hub) leaveRequest(c *conn, st *state, data json.RawMessage) error {
	var req LeaveRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ListID == "" {
		return errMalformed
	}
	if req.ListID != st.listID {
		return nil
	}
	h.leave(c, st)
	c.send(Message{Event: EventLeft, Data: RoomChange{ListID: req.ListID, Reason: "left"}})
	return nil
}

// leave removes the connection from its room and tells the others.
func (h *Hub) leave(c *conn, st *state) {
	if st.listID == "" {
		return
	}
	listID := st.listID
	st.listID = ""

	h.exit(listID, c)
	h.broadcast(listID, Message{Event: EventUserLeft, Data: Occupant{
		UserID: st.userID, Username: st.username, ConnID: c.id,
	}}, c)
	h.logger.Info("left room", "conn_id", c.id, "user_id", st.userID, "list_id", listID)
}

// relay forwards a presence signal to the rest of the sender's room.
func (h *Hub) relay(c *conn, st *state, event string, data json.RawMessage) error {
	var sig PresenceSignal
	if err := json.Unmarshal(data, &sig); err != nil || sig.TodoID == "" {
		return errMalformed
	}
	if st.listID == "" || sig.ListID != st.listID {
		return errNotJoined
	}
	h.broadcast(st.listID, Message{Event: event, Data: Presence{
		TodoID:   sig.TodoID,
		Field:    sig.Field,
		UserID:   st.userID,
		Username: st.username,
		ConnID:   c.id,
	}}, c)
	return nil
}
