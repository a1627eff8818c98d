package model

import "time"

// Priority is the urgency level of a todo.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// NormalizePriority maps unknown values to PriorityMedium.
func NormalizePriority(p string) Priority {
	switch Priority(p) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(p)
	default:
		return PriorityMedium
	}
}

// Todo is a task belonging to exactly one list. A todo with a parent is a
// subtask and can never itself be a parent.
type Todo struct {
	ID                    string     `json:"id" db:"id"`
	ListID                string     `json:"list_id" db:"list_id"`
	CreatedBy             string     `json:"created_by" db:"created_by"`
	Text                  string     `json:"text" db:"text"`
	Completed             bool       `json:"completed" db:"completed"`
	CompletedBy           *string    `json:"completed_by,omitempty" db:"completed_by"`
	CompletedAt           *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DueDate               *time.Time `json:"due_date,omitempty" db:"due_date"`
	ReminderMinutesBefore *int       `json:"reminder_minutes_before,omitempty" db:"reminder_minutes_before"`
	Priority              Priority   `json:"priority" db:"priority"`
	Notes                 string     `json:"notes" db:"notes"`
	AssignedTo            *string    `json:"assigned_to,omitempty" db:"assigned_to"`
	IsRecurring           bool       `json:"is_recurring" db:"is_recurring"`
	RecurrencePattern     *string    `json:"recurrence_pattern,omitempty" db:"recurrence_pattern"`
	NextOccurrence        *time.Time `json:"next_occurrence,omitempty" db:"next_occurrence"`
	ParentTodoID          *string    `json:"parent_todo_id,omitempty" db:"parent_todo_id"`
	SortOrder             int        `json:"sort_order" db:"sort_order"`
	DeletedAt             *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	ArchivedAt            *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`

	// Populated by read queries.
	CompletedByUsername *string      `json:"completed_by_username,omitempty" db:"completed_by_username"`
	AssignedToUsername  *string      `json:"assigned_to_username,omitempty" db:"assigned_to_username"`
	CommentCount        int          `json:"comment_count" db:"comment_count"`
	Attachments         []Attachment `json:"attachments" db:"-"`
}

// IsSubtask reports whether the todo has a parent.
func (t Todo) IsSubtask() bool {
	return t.ParentTodoID != nil
}

// NewTodo is the input for creating a todo. Nil fields fall back to the
// creating user's preferences.
type NewTodo struct {
	ListID                string `validate:"required,uuid"`
	Text                  string `validate:"required,max=2000"`
	DueDate               *time.Time
	ReminderMinutesBefore *int `validate:"omitempty,min=0,max=10080"`
	Priority              *Priority
	Notes                 string  `validate:"max=10000"`
	AssignedTo            *string `validate:"omitempty,uuid"`
	IsRecurring           bool
	RecurrencePattern     *string
	ParentTodoID          *string `validate:"omitempty,uuid"`
}

// TodoPatch is a partial update. Only set fields are written.
type TodoPatch struct {
	Text                  *string             `json:"text"`
	Completed             *bool               `json:"completed"`
	DueDate               Optional[time.Time] `json:"due_date"`
	ReminderMinutesBefore Optional[int]       `json:"reminder_minutes_before"`
	Priority              *string             `json:"priority"`
	Notes                 *string             `json:"notes"`
	AssignedTo            Optional[string]    `json:"assigned_to"`
	IsRecurring           *bool               `json:"is_recurring"`
	RecurrencePattern     Optional[string]    `json:"recurrence_pattern"`
}

// Empty reports whether the patch changes nothing.
func (p TodoPatch) Empty() bool {
	return p.Text == nil && p.Completed == nil && !p.DueDate.Set &&
		!p.ReminderMinutesBefore.Set && p.Priority == nil && p.Notes == nil &&
		!p.AssignedTo.Set && p.IsRecurring == nil && !p.RecurrencePattern.Set
}

// ReorderItem assigns a sort order to one todo. ParentTodoID must match the
// todo's current parent.
type ReorderItem struct {
	ID           string  `json:"id"`
	ParentTodoID *string `json:"parent_todo_id"`
	SortOrder    int     `json:"sort_order"`
}

// MoveRequest relocates a todo to a list, optional parent, and index.
type MoveRequest struct {
	TodoID       string  `json:"todo_id"`
	TargetListID string  `json:"target_list_id"`
	TargetParent *string `json:"target_parent_id"`
	TargetIndex  int     `json:"target_index"`
}
