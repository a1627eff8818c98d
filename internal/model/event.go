package model

// EventKind names an event exchanged over a realtime connection.
type EventKind string

// Mutation broadcasts, pushed after a store commit.
const (
	EventTodoCreated EventKind = "todo:created"
	EventTodoUpdated EventKind = "todo:updated"
	EventTodoDeleted EventKind = "todo:deleted"
	EventListUpdated EventKind = "list:updated"
)

// Event is a committed mutation to fan out to a list's room. Payload is
// the entity, or a {"id": ...} stub for deletions.
type Event struct {
	Kind    EventKind `json:"kind"`
	ListID  string    `json:"list_id"`
	Payload any       `json:"payload"`
}

// DeletedRef is the payload of a deletion event.
type DeletedRef struct {
	ID string `json:"id"`
}

// MemberRemoved is the list:updated payload sent when a member leaves or
// is removed from a list.
type MemberRemoved struct {
	ID            string `json:"id"`
	RemovedUserID string `json:"removed_user_id"`
}
