package model

import "time"

// WeekStart is the first day of the week shown to a user.
type WeekStart string

const (
	WeekStartSunday WeekStart = "sunday"
	WeekStartMonday WeekStart = "monday"
)

// Preferences hold per-user defaults applied to new todos and list reads.
type Preferences struct {
	DefaultTaskPriority        Priority  `json:"default_task_priority" db:"default_task_priority"`
	DefaultTaskDueOffsetDays   int       `json:"default_task_due_offset_days" db:"default_task_due_offset_days"`
	DefaultTaskReminderMinutes *int      `json:"default_task_reminder_minutes,omitempty" db:"default_task_reminder_minutes"`
	AutoArchiveDays            int       `json:"auto_archive_days" db:"auto_archive_days"`
	WeekStartDay               WeekStart `json:"week_start_day" db:"week_start_day"`
}

// DefaultPreferences returns the preferences of a freshly registered user.
func DefaultPreferences() Preferences {
	return Preferences{
		DefaultTaskPriority: PriorityMedium,
		WeekStartDay:        WeekStartSunday,
	}
}

// Normalize clamps every preference into its allowed range.
func (p Preferences) Normalize() Preferences {
	p.DefaultTaskPriority = NormalizePriority(string(p.DefaultTaskPriority))
	p.DefaultTaskDueOffsetDays = clamp(p.DefaultTaskDueOffsetDays, 0, 365)
	if p.DefaultTaskReminderMinutes != nil {
		v := clamp(*p.DefaultTaskReminderMinutes, 0, 10080)
		p.DefaultTaskReminderMinutes = &v
	}
	p.AutoArchiveDays = clamp(p.AutoArchiveDays, 0, 365)
	if p.WeekStartDay != WeekStartMonday {
		p.WeekStartDay = WeekStartSunday
	}
	return p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// User is a registered account. PasswordHash is never serialized.
type User struct {
	ID            string    `json:"id" db:"id"`
	Username      string    `json:"username" db:"username"`
	Email         string    `json:"email" db:"email"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	IsAdmin       bool      `json:"is_admin" db:"is_admin"`
	IsApproved    bool      `json:"is_approved" db:"is_approved"`
	EmailVerified bool      `json:"email_verified" db:"email_verified"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`

	Preferences
}

// NewUser is the registration input.
type NewUser struct {
	Username string `validate:"required,min=3,max=32,alphanum"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=72"`
}

// SessionUser is the identity a session token resolves to.
type SessionUser struct {
	UserID   string `json:"user_id" db:"user_id"`
	Username string `json:"username" db:"username"`
	IsAdmin  bool   `json:"is_admin" db:"is_admin"`
}

// Session is an opaque login token with an absolute expiry.
type Session struct {
	Token     string    `json:"token" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TokenPurpose scopes a single-use token.
type TokenPurpose string

const (
	TokenPasswordReset     TokenPurpose = "password_reset"
	TokenEmailVerification TokenPurpose = "email_verification"
)

// TTL returns how long a token of this purpose stays valid.
func (p TokenPurpose) TTL() time.Duration {
	if p == TokenPasswordReset {
		return time.Hour
	}
	return 24 * time.Hour
}
