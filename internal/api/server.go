package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/tido/internal/export"
	"github.com/nhle/tido/internal/logging"
	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/store"
)

// SessionCookie is the cookie a browser session token travels in.
const SessionCookie = "session"

// maxImportBytes bounds an import upload.
const maxImportBytes = 10 << 20

// Backend is the store surface the HTTP handlers use.
type Backend interface {
	export.Source
	export.Sink
	ResolveSession(ctx context.Context, token string) (*model.SessionUser, error)
	SchemaVersion(ctx context.Context) (int, error)
}

// Server holds the HTTP handlers.
type Server struct {
	backend Backend
	ws      http.Handler
	logger  *slog.Logger
	now     func() time.Time
}

// NewServer creates the HTTP surface. ws serves websocket upgrades on /ws.
func NewServer(backend Backend, ws http.Handler, logger *slog.Logger) *Server {
	return &Server{
		backend: backend,
		ws:      ws,
		logger:  logging.Component(logger, "api"),
		now:     time.Now,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.Handle("GET /ws", s.ws)
	mux.HandleFunc("GET /lists/{id}/export", s.exportList)
	mux.HandleFunc("POST /lists/import", s.importList)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	v, err := s.backend.SchemaVersion(r.Context())
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "schema_version": v})
}

// authenticate resolves the caller from a bearer token or session cookie.
func (s *Server) authenticate(r *http.Request) (*model.SessionUser, error) {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	} else if c, err := r.Cookie(SessionCookie); err == nil {
		token = c.Value
	}

	who, err := s.backend.ResolveSession(r.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrUnauthorized) {
			logging.Security(s.logger, "request with invalid session",
				"path", r.URL.Path, "remote_addr", r.RemoteAddr)
		}
		return nil, err
	}
	return who, nil
}

func (s *Server) exportList(w http.ResponseWriter, r *http.Request) {
	who, err := s.authenticate(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		WriteError(w, s.logger, fmt.Errorf("unknown export format %q: %w", format, store.ErrInvalidPayload))
		return
	}

	now := s.now()
	doc, err := export.Build(r.Context(), s.backend, who.UserID, r.PathValue("id"), now)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	name := export.Filename(doc.List.Name, format, now)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = export.WriteCSV(w, doc.Todos)
	} else {
		w.Header().Set("Content-Type", "application/json")
		err = export.WriteJSON(w, doc)
	}
	if err != nil {
		s.logger.Error("writing export failed", "list_id", doc.List.ID, "error", err)
		return
	}
	s.logger.Info("list exported", "user_id", who.UserID, "list_id", doc.List.ID, "format", format)
}

// importList takes a multipart upload with a "file" part. The todos go into
// listId, or into a new list named newListName when createNewList is "true".
func (s *Server) importList(w http.ResponseWriter, r *http.Request) {
	who, err := s.authenticate(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, s.logger, fmt.Errorf("reading import file: %v: %w", err, store.ErrInvalidPayload))
		return
	}
	defer file.Close()

	target := export.Target{ListID: r.FormValue("listId")}
	if r.FormValue("createNewList") == "true" {
		target.NewListName = r.FormValue("newListName")
	}

	format := export.FormatFor(header.Filename)
	res, err := export.Import(r.Context(), s.backend, who.UserID, target, format, file)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	s.logger.Info("list imported", "user_id", who.UserID, "list_id", res.ListID,
		"format", format, "imported", res.Imported, "failed", len(res.Errors))
	writeJSON(w, http.StatusOK, res)
}
