package hub

import (
	"encoding/json"
	"errors"
)

// Inbound events sent by clients.
const (
	EventJoinList       = "join-list"
	EventLeaveList      = "leave-list"
	EventEditing        = "todo:editing"
	EventStoppedEditing = "todo:stopped-editing"
	EventTyping         = "todo:typing"
	EventStoppedTyping  = "todo:stopped-typing"
)

// Outbound events pushed to clients, besides the mutation kinds in
// model.EventKind.
const (
	EventJoined             = "list:joined"
	EventLeft               = "list:left"
	EventUserJoined         = "user:joined"
	EventUserLeft           = "user:left"
	EventUserEditing        = "todo:user-editing"
	EventUserStoppedEditing = "todo:user-stopped-editing"
	EventUserTyping         = "todo:user-typing"
	EventUserStoppedTyping  = "todo:user-stopped-typing"
	EventError              = "error"
)

// presenceRelays maps a client presence signal to the event the rest of
// the room receives.
var presenceRelays = map[string]string{
	EventEditing:        EventUserEditing,
	EventStoppedEditing: EventUserStoppedEditing,
	EventTyping:         EventUserTyping,
	EventStoppedTyping:  EventUserStoppedTyping,
}

// Inbound is a decoded client frame.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is a frame pushed to a client.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinRequest asks to subscribe to a list's room. The session id is
// re-resolved by the hub; any identity the client claims is ignored.
type JoinRequest struct {
	SessionID string `json:"sessionId"`
	ListID    string `json:"listId"`
}

// LeaveRequest unsubscribes from a list's room. A bare JSON string is
// accepted as the list id.
type LeaveRequest struct {
	ListID string `json:"listId"`
}

func (r *LeaveRequest) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.ListID = id
		return nil
	}
	type plain LeaveRequest
	return json.Unmarshal(data, (*plain)(r))
}

// PresenceSignal is an ephemeral editing or typing indicator.
type PresenceSignal struct {
	TodoID string `json:"todoId"`
	ListID string `json:"listId"`
	Field  string `json:"field,omitempty"`
}

// Presence is a relayed signal tagged with the sender's identity.
type Presence struct {
	TodoID   string `json:"todoId"`
	Field    string `json:"field,omitempty"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	ConnID   string `json:"socketId"`
}

// Occupant identifies a connection in user:joined and user:left events.
type Occupant struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	ConnID   string `json:"socketId"`
}

// RoomChange acknowledges a join or leave to the connection itself.
type RoomChange struct {
	ListID string `json:"listId"`
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload reports a rejected client event.
type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	errUnauthorized = errors.New("session is invalid or expired")
	errNotMember    = errors.New("not a member of this list")
	errNotJoined    = errors.New("join the list first")
	errMalformed    = errors.New("malformed event payload")
	errUnknownEvent = errors.New("unknown event")
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, errUnauthorized):
		return "unauthorized"
	case errors.Is(err, errNotMember):
		return "access_denied"
	case errors.Is(err, errNotJoined):
		return "not_joined"
	case errors.Is(err, errMalformed):
		return "invalid_payload"
	case errors.Is(err, errUnknownEvent):
		return "unknown_event"
	default:
		return "internal_error"
	}
}
