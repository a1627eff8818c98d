package store

import (
	"context"
	"time"

	"github.com/nhle/tido/internal/model"
)

// Notifier receives events after the mutation that produced them has
// committed. Implementations must not block for long; the store calls
// Notify on the request path.
type Notifier interface {
	Notify(ctx context.Context, ev model.Event)
}

// Store defines the persistence interface for users, lists, todos and the
// entities hanging off them. Every operation acting on behalf of a user
// takes that user's id first and enforces list membership itself.
type Store interface {
	// === Users & sessions ===

	CreateUser(ctx context.Context, in model.NewUser) (*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) (*model.User, error)

	CreateSession(ctx context.Context, userID string) (*model.Session, error)
	ResolveSession(ctx context.Context, token string) (*model.SessionUser, error)
	DeleteSession(ctx context.Context, token string) error

	IssueToken(ctx context.Context, userID string, purpose model.TokenPurpose) (string, error)
	VerifyEmail(ctx context.Context, raw string) (string, error)
	ResetPassword(ctx context.Context, raw, newPassword string) error

	// === Site administration ===

	ListUsers(ctx context.Context, actorID string) ([]model.User, error)
	ListPendingUsers(ctx context.Context, actorID string) ([]model.User, error)
	ApproveUser(ctx context.Context, actorID, userID string) error
	SetUserAdmin(ctx context.Context, actorID, userID string, admin bool) error
	DeleteUser(ctx context.Context, actorID, userID string) error

	// === Lists & membership ===

	IsMember(ctx context.Context, listID, userID string) (bool, error)
	CreateList(ctx context.Context, userID, name string) (*model.List, error)
	GetUserLists(ctx context.Context, userID string, archived bool) ([]model.List, error)
	GetList(ctx context.Context, userID, listID string) (*model.List, error)
	RenameList(ctx context.Context, userID, listID, name string) (*model.List, error)
	ArchiveList(ctx context.Context, userID, listID string) (*model.List, error)
	RestoreList(ctx context.Context, userID, listID string) (*model.List, error)
	DeleteList(ctx context.Context, userID, listID string) error
	GetListMembers(ctx context.Context, userID, listID string) ([]model.Member, error)
	RemoveMember(ctx context.Context, actorID, listID, memberID string) error
	SetMemberPermission(ctx context.Context, actorID, listID, memberID string, perm model.Permission) error

	// === Invitations ===

	CreateInvitation(ctx context.Context, inviterID, listID, inviteeUsername string, perm model.Permission) (*model.Invitation, error)
	GetUserInvitations(ctx context.Context, userID string) ([]model.Invitation, error)
	AcceptInvitation(ctx context.Context, userID, invitationID string) (*model.List, error)
	RejectInvitation(ctx context.Context, userID, invitationID string) error

	// === Todos ===

	CreateTodo(ctx context.Context, userID string, in model.NewTodo) (*model.Todo, error)
	GetTodo(ctx context.Context, userID, todoID string) (*model.Todo, error)
	GetTodosForList(ctx context.Context, userID, listID string) ([]model.Todo, error)
	UpdateTodo(ctx context.Context, userID, todoID string, patch model.TodoPatch) (*model.Todo, error)
	DeleteTodo(ctx context.Context, userID, todoID string) error
	GetDeletedTodosForList(ctx context.Context, userID, listID string) ([]model.Todo, error)
	RestoreTodo(ctx context.Context, userID, todoID string) (*model.Todo, error)
	PermanentlyDeleteTodo(ctx context.Context, userID, todoID string) error
	DeleteAllDeletedTodosForList(ctx context.Context, userID, listID string) (int64, error)
	ReorderTodos(ctx context.Context, userID, listID string, items []model.ReorderItem) ([]model.Todo, error)
	MoveTodo(ctx context.Context, userID string, req model.MoveRequest) (*model.Todo, error)
	CheckRecurringTasksForList(ctx context.Context, userID, listID string) ([]model.Todo, error)

	// === Comments & attachments ===

	CreateComment(ctx context.Context, userID, todoID, text string) (*model.Comment, error)
	GetComments(ctx context.Context, userID, todoID string) ([]model.Comment, error)
	UpdateComment(ctx context.Context, userID, commentID, text string) (*model.Comment, error)
	DeleteComment(ctx context.Context, userID, commentID string) error

	CreateAttachment(ctx context.Context, userID string, in model.NewAttachment) (*model.Attachment, error)
	GetAttachments(ctx context.Context, userID, todoID string) ([]model.Attachment, error)
	GetAttachmentFile(ctx context.Context, userID, attachmentID string) (*model.Attachment, error)
	DeleteAttachment(ctx context.Context, userID, attachmentID string) (*model.Attachment, error)

	// === Maintenance ===

	Maintainer

	SetNotifier(n Notifier)
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

// Maintainer is the subset of Store driven by the background sweeper.
type Maintainer interface {
	CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	CleanExpiredTokens(ctx context.Context, now time.Time) (int64, error)
	PurgeDeletedTodos(ctx context.Context, now time.Time) (int64, error)
	RunRecurrenceSweep(ctx context.Context, now time.Time) (int, error)
}

var _ Store = (*SQLiteStore)(nil)
