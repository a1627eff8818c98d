package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/tido/internal/access"
)

// Error kinds. Every failure returned by the store matches exactly one of
// these with errors.Is.
var (
	ErrAccessDenied       = access.ErrDenied
	ErrNotFound           = errors.New("not found")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrDuplicateState     = errors.New("duplicate state")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Condition is a named failure belonging to one of the error kinds.
// Callers match a specific condition with errors.Is(err, ErrSelfParent)
// and its kind with errors.Is(err, ErrInvariantViolation).
type Condition struct {
	Kind    error
	Code    string
	Message string
}

func (c *Condition) Error() string {
	return c.Message
}

func (c *Condition) Unwrap() error {
	return c.Kind
}

func condition(kind error, code, msg string) *Condition {
	return &Condition{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidAssignee              = condition(ErrInvalidPayload, "invalid_assignee", "assignee is not a member of the list")
	ErrInvalidRecurrence            = condition(ErrInvalidPayload, "invalid_recurrence", "invalid recurrence pattern")
	ErrInvalidPermission            = condition(ErrInvalidPayload, "invalid_permission", "permission must be admin or editor")
	ErrCannotChangeParentViaReorder = condition(ErrInvariantViolation, "cannot_change_parent_via_reorder", "reorder cannot change a todo's parent")
	ErrSubtaskDepth                 = condition(ErrInvariantViolation, "subtask_depth", "subtasks cannot have subtasks")
	ErrSelfParent                   = condition(ErrInvariantViolation, "self_parent", "a todo cannot be its own parent")
	ErrCrossListParent              = condition(ErrInvariantViolation, "cross_list_parent", "parent must belong to the same list")
	ErrIncompleteSubtasks           = condition(ErrInvariantViolation, "incomplete_subtasks", "complete all subtasks first")
	ErrListNotArchived              = condition(ErrInvariantViolation, "list_not_archived", "only archived lists can be deleted")
	ErrCreatorMembership            = condition(ErrInvariantViolation, "creator_membership", "the list creator's membership cannot be changed")
	ErrSelfDeletion                 = condition(ErrInvariantViolation, "self_deletion", "admins cannot delete their own account")
	ErrAlreadyMember                = condition(ErrDuplicateState, "already_member", "user is already a member of this list")
	ErrInvitationPending            = condition(ErrDuplicateState, "invitation_pending", "an invitation is already pending")
	ErrInvitationProcessed          = condition(ErrDuplicateState, "invitation_processed", "invitation has already been processed")
	ErrUsernameTaken                = condition(ErrDuplicateState, "username_taken", "username or email already registered")
)

// AsCondition returns the Condition in err's chain, if any.
func AsCondition(err error) (*Condition, bool) {
	var c *Condition
	ok := errors.As(err, &c)
	return c, ok
}

// notFound wraps sql.ErrNoRows as ErrNotFound and passes other errors
// through with context.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("getting %s %s: %w", what, id, err)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
