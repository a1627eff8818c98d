package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id                            TEXT PRIMARY KEY,
	username                      TEXT NOT NULL UNIQUE,
	email                         TEXT NOT NULL UNIQUE,
	password_hash                 TEXT NOT NULL,
	is_admin                      INTEGER NOT NULL DEFAULT 0,
	is_approved                   INTEGER NOT NULL DEFAULT 0,
	email_verified                INTEGER NOT NULL DEFAULT 0,
	default_task_priority         TEXT NOT NULL DEFAULT 'medium',
	default_task_due_offset_days  INTEGER NOT NULL DEFAULT 0,
	default_task_reminder_minutes INTEGER,
	auto_archive_days             INTEGER NOT NULL DEFAULT 0,
	week_start_day                TEXT NOT NULL DEFAULT 'sunday',
	created_at                    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lists (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	created_by  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	archived_at DATETIME,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS list_members (
	list_id    TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	permission TEXT NOT NULL CHECK (permission IN ('admin', 'editor')),
	created_at DATETIME NOT NULL,
	PRIMARY KEY (list_id, user_id)
);

CREATE TABLE IF NOT EXISTS list_invitations (
	id           TEXT PRIMARY KEY,
	list_id      TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	inviter_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	invitee_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	permission   TEXT NOT NULL CHECK (permission IN ('admin', 'editor')),
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   DATETIME NOT NULL,
	responded_at DATETIME
);

CREATE TABLE IF NOT EXISTS todos (
	id                      TEXT PRIMARY KEY,
	list_id                 TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	created_by              TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	text                    TEXT NOT NULL,
	completed               INTEGER NOT NULL DEFAULT 0,
	completed_by            TEXT REFERENCES users(id) ON DELETE SET NULL,
	completed_at            DATETIME,
	due_date                DATETIME,
	reminder_minutes_before INTEGER,
	priority                TEXT NOT NULL DEFAULT 'medium',
	notes                   TEXT NOT NULL DEFAULT '',
	assigned_to             TEXT REFERENCES users(id) ON DELETE SET NULL,
	is_recurring            INTEGER NOT NULL DEFAULT 0,
	recurrence_pattern      TEXT,
	next_occurrence         DATETIME,
	parent_todo_id          TEXT REFERENCES todos(id) ON DELETE CASCADE,
	sort_order              INTEGER NOT NULL DEFAULT 0,
	deleted_at              DATETIME,
	archived_at             DATETIME,
	created_at              DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
CREATE INDEX IF NOT EXISTS idx_list_members_user ON list_members(user_id);
CREATE INDEX IF NOT EXISTS idx_invitations_invitee ON list_invitations(invitee_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_pending
	ON list_invitations(list_id, invitee_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_todos_list ON todos(list_id);
CREATE INDEX IF NOT EXISTS idx_todos_list_parent ON todos(list_id, parent_todo_id);
CREATE INDEX IF NOT EXISTS idx_todos_parent ON todos(parent_todo_id);
CREATE INDEX IF NOT EXISTS idx_todos_deleted ON todos(deleted_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	todo_id    TEXT NOT NULL REFERENCES todos(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	text       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
	id            TEXT PRIMARY KEY,
	todo_id       TEXT NOT NULL REFERENCES todos(id) ON DELETE CASCADE,
	uploaded_by   TEXT REFERENCES users(id) ON DELETE SET NULL,
	original_name TEXT NOT NULL,
	stored_name   TEXT NOT NULL UNIQUE,
	mime_type     TEXT NOT NULL,
	size          INTEGER NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comments_todo ON comments(todo_id);
CREATE INDEX IF NOT EXISTS idx_attachments_todo ON attachments(todo_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS user_tokens (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	purpose    TEXT NOT NULL,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id, purpose);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
