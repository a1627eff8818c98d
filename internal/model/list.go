package model

import "time"

// Permission is a member's level within a list.
type Permission string

const (
	PermissionEditor Permission = "editor"
	PermissionAdmin  Permission = "admin"
)

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	return p == PermissionEditor || p == PermissionAdmin
}

// List is a named container of todos shared among its members.
type List struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	CreatedBy  string     `json:"created_by" db:"created_by"`
	ArchivedAt *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`

	// Permission is the caller's level, populated by per-user reads.
	Permission Permission `json:"permission,omitempty" db:"permission"`
}

// Member binds a user to a list.
type Member struct {
	ListID     string     `json:"list_id" db:"list_id"`
	UserID     string     `json:"user_id" db:"user_id"`
	Username   string     `json:"username" db:"username"`
	Permission Permission `json:"permission" db:"permission"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// InvitationStatus tracks the lifecycle of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// Invitation offers list membership to a user.
type Invitation struct {
	ID              string           `json:"id" db:"id"`
	ListID          string           `json:"list_id" db:"list_id"`
	InviterID       string           `json:"inviter_id" db:"inviter_id"`
	InviteeID       string           `json:"invitee_id" db:"invitee_id"`
	Permission      Permission       `json:"permission" db:"permission"`
	Status          InvitationStatus `json:"status" db:"status"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	ListName        string           `json:"list_name,omitempty" db:"list_name"`
	InviterUsername string           `json:"inviter_username,omitempty" db:"inviter_username"`
}
