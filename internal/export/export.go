// Package export moves a list and its todos in and out of the daemon as
// CSV or JSON.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/tido/internal/model"
)

// Version identifies the JSON document layout.
const Version = "1.0"

// Source is the read access an export needs. Every call is made on behalf
// of userID, so a non-member gets the store's usual error.
type Source interface {
	GetList(ctx context.Context, userID, listID string) (*model.List, error)
	GetTodosForList(ctx context.Context, userID, listID string) ([]model.Todo, error)
	GetListMembers(ctx context.Context, userID, listID string) ([]model.Member, error)
}

// Metadata describes when and what was exported.
type Metadata struct {
	ExportedAt time.Time `json:"exported_at"`
	Version    string    `json:"version"`
	ListID     string    `json:"list_id"`
	ListName   string    `json:"list_name"`
}

// Member is an exported list member.
type Member struct {
	Username   string           `json:"username"`
	Permission model.Permission `json:"permission"`
}

// Document is the full JSON export of one list.
type Document struct {
	Metadata Metadata     `json:"metadata"`
	List     model.List   `json:"list"`
	Members  []Member     `json:"members"`
	Todos    []model.Todo `json:"todos"`
}

// Build collects a list's active todos and members into a Document.
func Build(ctx context.Context, src Source, userID, listID string, now time.Time) (*Document, error) {
	l, err := src.GetList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}
	todos, err := src.GetTodosForList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}
	members, err := src.GetListMembers(ctx, userID, listID)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Metadata: Metadata{
			ExportedAt: now.UTC(),
			Version:    Version,
			ListID:     l.ID,
			ListName:   l.Name,
		},
		List:    *l,
		Members: make([]Member, 0, len(members)),
		Todos:   todos,
	}
	for _, m := range members {
		doc.Members = append(doc.Members, Member{Username: m.Username, Permission: m.Permission})
	}
	if doc.Todos == nil {
		doc.Todos = []model.Todo{}
	}
	return doc, nil
}

// WriteJSON encodes doc as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}

var csvHeader = []string{
	"ID",
	"Text",
	"Completed",
	"Completed At",
	"Completed By",
	"Due Date",
	"Reminder (minutes)",
	"Priority",
	"Notes",
	"Parent Task ID",
	"Assigned To",
	"Is Recurring",
	"Recurrence Pattern",
	"Created At",
	"Sort Order",
}

// WriteCSV writes one row per todo under a header row.
func WriteCSV(w io.Writer, todos []model.Todo) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, t := range todos {
		if err := cw.Write(csvRow(t)); err != nil {
			return fmt.Errorf("writing csv row %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

func csvRow(t model.Todo) []string {
	reminder := ""
	if t.ReminderMinutesBefore != nil {
		reminder = strconv.Itoa(*t.ReminderMinutesBefore)
	}
	return []string{
		t.ID,
		t.Text,
		yesNo(t.Completed),
		timeOrEmpty(t.CompletedAt),
		deref(t.CompletedByUsername),
		timeOrEmpty(t.DueDate),
		reminder,
		string(t.Priority),
		t.Notes,
		deref(t.ParentTodoID),
		deref(t.AssignedToUsername),
		yesNo(t.IsRecurring),
		deref(t.RecurrencePattern),
		t.CreatedAt.UTC().Format(time.RFC3339),
		strconv.Itoa(t.SortOrder),
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timeOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Filename suggests a download name such as "Groceries-export-2025-03-03.csv".
// Characters that are unsafe in a Content-Disposition filename are replaced.
func Filename(listName, ext string, now time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f, strings.ContainsRune(`"\/:*?<>|`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(listName))
	if name == "" {
		name = "list"
	}
	return fmt.Sprintf("%s-export-%s.%s", name, now.UTC().Format(time.DateOnly), ext)
}
