// Package api maps store failures onto HTTP and serves the small HTTP
// surface of the server.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nhle/tido/internal/store"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var kinds = []struct {
	err    error
	status int
	code   string
}{
	{store.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{store.ErrAccessDenied, http.StatusForbidden, "access_denied"},
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{store.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
	{store.ErrInvariantViolation, http.StatusConflict, "invariant_violation"},
	{store.ErrDuplicateState, http.StatusConflict, "duplicate_state"},
}

// Status returns the HTTP status and client-facing message for err. Errors
// outside the store's kinds are a 500 with a generic message; a nil error
// is never reported as success.
func Status(err error) (int, string) {
	status, body := classify(err)
	return status, body.Error
}

func classify(err error) (int, ErrorBody) {
	for _, k := range kinds {
		if !errors.Is(err, k.err) {
			continue
		}
		if c, ok := store.AsCondition(err); ok {
			return k.status, ErrorBody{Error: c.Message, Code: c.Code}
		}
		return k.status, ErrorBody{Error: k.err.Error(), Code: k.code}
	}
	return http.StatusInternalServerError, ErrorBody{Error: "internal error", Code: "internal_error"}
}

// WriteError sends err as a JSON error response. Server errors are logged
// with their full chain; the client only sees the generic message.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
