package model

import "time"

// Comment is a note left on a todo by one of the list's members.
type Comment struct {
	ID        string    `json:"id" db:"id"`
	TodoID    string    `json:"todo_id" db:"todo_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Username  string    `json:"username" db:"username"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Attachment is file metadata for a todo. StoredName locates the file on
// disk and never leaves the server.
type Attachment struct {
	ID           string    `json:"id" db:"id"`
	TodoID       string    `json:"todo_id" db:"todo_id"`
	UploadedBy   *string   `json:"uploaded_by,omitempty" db:"uploaded_by"`
	OriginalName string    `json:"original_name" db:"original_name"`
	StoredName   string    `json:"-" db:"stored_name"`
	MimeType     string    `json:"mime_type" db:"mime_type"`
	Size         int64     `json:"size" db:"size"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NewAttachment is the input for recording an uploaded file.
type NewAttachment struct {
	TodoID       string `validate:"required,uuid"`
	OriginalName string `validate:"required,max=255"`
	MimeType     string `validate:"required,max=255"`
	Size         int64  `validate:"min=0"`
}
