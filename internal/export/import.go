package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/store"
)

// MaxImportRecords caps the todos accepted from one file.
const MaxImportRecords = 5000

// Format is an import or export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatFor picks the format from a file name. Only ".json" is JSON.
func FormatFor(filename string) Format {
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		return FormatJSON
	}
	return FormatCSV
}

// Sink is the access an import needs. Todos are created through the store
// so they get the same validation, ordering and broadcasts as any other.
type Sink interface {
	GetList(ctx context.Context, userID, listID string) (*model.List, error)
	CreateList(ctx context.Context, userID, name string) (*model.List, error)
	CreateTodo(ctx context.Context, userID string, in model.NewTodo) (*model.Todo, error)
}

// Target is where imported todos go: a new list when NewListName is set,
// otherwise the existing list ListID.
type Target struct {
	ListID      string
	NewListName string
}

// Record is one todo read from an import file. ID and ParentID are the
// file's own identifiers and only serve to attach subtasks.
type Record struct {
	ID                string
	ParentID          string
	Text              string
	Priority          string
	DueDate           *time.Time
	ReminderMinutes   *int
	Notes             string
	IsRecurring       bool
	RecurrencePattern string
}

// ImportResult reports what an import did. Rows that could not be created
// are listed in Errors and do not fail the import.
type ImportResult struct {
	ListID   string   `json:"list_id"`
	ListName string   `json:"list_name"`
	Imported int      `json:"imported_count"`
	Errors   []string `json:"errors,omitempty"`
}

// Import reads todos from r and creates them in the target list on behalf
// of userID. The file is parsed before anything is written, so a malformed
// file leaves no new list behind.
func Import(ctx context.Context, dst Sink, userID string, target Target, format Format, r io.Reader) (*ImportResult, error) {
	var (
		records []Record
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = ReadCSV(r)
	case FormatJSON:
		records, err = ReadJSON(r)
	default:
		return nil, fmt.Errorf("unknown import format %q: %w", format, store.ErrInvalidPayload)
	}
	if err != nil {
		return nil, err
	}

	var l *model.List
	switch name := strings.TrimSpace(target.NewListName); {
	case name != "":
		l, err = dst.CreateList(ctx, userID, name)
	case target.ListID != "":
		l, err = dst.GetList(ctx, userID, target.ListID)
	default:
		return nil, fmt.Errorf("import needs a list id or a new list name: %w", store.ErrInvalidPayload)
	}
	if err != nil {
		return nil, err
	}

	res := &ImportResult{ListID: l.ID, ListName: l.Name}
	created := make(map[string]string)

	// Parents first so subtasks can be attached to their new ids.
	for _, rec := range records {
		if rec.ParentID != "" {
			continue
		}
		t, err := dst.CreateTodo(ctx, userID, rec.newTodo(l.ID, nil, "Imported task"))
		if err != nil {
			if !rowError(err) {
				return nil, err
			}
			res.Errors = append(res.Errors, fmt.Sprintf("failed to import task %q: %v", rec.Text, err))
			continue
		}
		if rec.ID != "" {
			created[rec.ID] = t.ID
		}
		res.Imported++
	}

	for _, rec := range records {
		if rec.ParentID == "" {
			continue
		}
		parentID, ok := created[rec.ParentID]
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("skipped subtask %q: parent not found", rec.Text))
			continue
		}
		if _, err := dst.CreateTodo(ctx, userID, rec.newTodo(l.ID, &parentID, "Imported subtask")); err != nil {
			if !rowError(err) {
				return nil, err
			}
			res.Errors = append(res.Errors, fmt.Sprintf("failed to import subtask %q: %v", rec.Text, err))
			continue
		}
		res.Imported++
	}
	return res, nil
}

// rowError reports whether err concerns one row's content rather than the
// caller or the database.
func rowError(err error) bool {
	return errors.Is(err, store.ErrInvalidPayload) ||
		errors.Is(err, store.ErrInvariantViolation) ||
		errors.Is(err, store.ErrNotFound)
}

func (rec Record) newTodo(listID string, parentID *string, fallback string) model.NewTodo {
	in := model.NewTodo{
		ListID:                listID,
		Text:                  strings.TrimSpace(rec.Text),
		DueDate:               rec.DueDate,
		ReminderMinutesBefore: rec.ReminderMinutes,
		Notes:                 rec.Notes,
		IsRecurring:           rec.IsRecurring,
		ParentTodoID:          parentID,
	}
	if in.Text == "" {
		in.Text = fallback
	}
	if rec.Priority != "" {
		p := model.NormalizePriority(strings.ToLower(strings.TrimSpace(rec.Priority)))
		in.Priority = &p
	}
	if rec.RecurrencePattern != "" {
		pattern := rec.RecurrencePattern
		in.RecurrencePattern = &pattern
	}
	return in
}

// ReadCSV parses rows under a header using the column names WriteCSV
// produces. Columns may appear in any order; only Text is required.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty csv file: %w", store.ErrInvalidPayload)
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %v: %w", err, store.ErrInvalidPayload)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := col["Text"]; !ok {
		return nil, fmt.Errorf("csv header has no Text column: %w", store.ErrInvalidPayload)
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %v: %w", err, store.ErrInvalidPayload)
		}
		line, _ := cr.FieldPos(0)
		field := func(name string) string {
			if i, ok := col[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		rec := Record{
			ID:                field("ID"),
			ParentID:          field("Parent Task ID"),
			Text:              field("Text"),
			Priority:          field("Priority"),
			Notes:             field("Notes"),
			IsRecurring:       strings.EqualFold(field("Is Recurring"), "yes"),
			RecurrencePattern: field("Recurrence Pattern"),
		}
		if rec.DueDate, err = parseDue(field("Due Date")); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ReminderMinutes, err = parseReminder(field("Reminder (minutes)")); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
		if len(records) > MaxImportRecords {
			return nil, fmt.Errorf("more than %d todos: %w", MaxImportRecords, store.ErrInvalidPayload)
		}
	}
	return records, nil
}

// jsonRecord accepts the keys of a JSON export and the CSV column names.
// Field matching in encoding/json ignores case, so "Text" fills text.
type jsonRecord struct {
	ID                    string          `json:"id"`
	ParentTodoID          string          `json:"parent_todo_id"`
	ParentTaskID          string          `json:"Parent Task ID"`
	Text                  string          `json:"text"`
	Priority              string          `json:"priority"`
	DueDate               string          `json:"due_date"`
	DueDateColumn         string          `json:"Due Date"`
	ReminderMinutesBefore *int            `json:"reminder_minutes_before"`
	ReminderColumn        json.RawMessage `json:"Reminder (minutes)"`
	Notes                 string          `json:"notes"`
	IsRecurring           bool            `json:"is_recurring"`
	IsRecurringColumn     string          `json:"Is Recurring"`
	RecurrencePattern     string          `json:"recurrence_pattern"`
	PatternColumn         string          `json:"Recurrence Pattern"`
}

// ReadJSON parses either a full export document or a bare array of todos.
func ReadJSON(r io.Reader) ([]Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading json: %w", err)
	}

	var rows []jsonRecord
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &rows)
	} else {
		var doc struct {
			Todos *[]jsonRecord `json:"todos"`
		}
		err = json.Unmarshal(trimmed, &doc)
		if err == nil && doc.Todos == nil {
			return nil, fmt.Errorf("expected an array of todos: %w", store.ErrInvalidPayload)
		}
		if doc.Todos != nil {
			rows = *doc.Todos
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decoding json: %v: %w", err, store.ErrInvalidPayload)
	}
	if len(rows) > MaxImportRecords {
		return nil, fmt.Errorf("more than %d todos: %w", MaxImportRecords, store.ErrInvalidPayload)
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec := Record{
			ID:                row.ID,
			ParentID:          firstNonEmpty(row.ParentTodoID, row.ParentTaskID),
			Text:              row.Text,
			Priority:          row.Priority,
			Notes:             row.Notes,
			IsRecurring:       row.IsRecurring || strings.EqualFold(row.IsRecurringColumn, "yes"),
			RecurrencePattern: firstNonEmpty(row.RecurrencePattern, row.PatternColumn),
			ReminderMinutes:   row.ReminderMinutesBefore,
		}
		if rec.DueDate, err = parseDue(firstNonEmpty(row.DueDate, row.DueDateColumn)); err != nil {
			return nil, fmt.Errorf("todo %d: %w", i, err)
		}
		if rec.ReminderMinutes == nil && len(row.ReminderColumn) > 0 {
			s := strings.Trim(string(row.ReminderColumn), `"`)
			if rec.ReminderMinutes, err = parseReminder(s); err != nil {
				return nil, fmt.Errorf("todo %d: %w", i, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDue accepts RFC 3339 timestamps and bare dates. Bare dates are due
// at the start of that day in UTC.
func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("due date %q is not a date: %w", s, store.ErrInvalidPayload)
}

func parseReminder(s string) (*int, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("reminder %q is not a number of minutes: %w", s, store.ErrInvalidPayload)
	}
	return &n, nil
}
