package web

// errors.go turns service errors into JSON responses. The technical error
// is logged with the request id; the client gets the coded user message
// from core.MapError.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/modreports/internal/core"
	"github.com/JonMunkholm/modreports/internal/logging"
	"github.com/JonMunkholm/modreports/internal/storage"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	// Import is the partial result of a failed import.
	Import *core.ImportResult `json:"import,omitempty"`
}

type errorString string

func (e errorString) Error() string { return string(e) }

func slogFor(r *http.Request) *slog.Logger {
	return logging.WithFields(r.Context(), "method", r.Method, "path", r.URL.Path)
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports), errors.Is(err, storage.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrExecDisabled):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrCanceled), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrHeader), errors.Is(err, core.ErrIO):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user message with status, or with
// statusFor(err) when status is 0.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	s.respondImportError(w, r, err, status, nil)
}

func (s *Server) respondImportError(w http.ResponseWriter, r *http.Request, err error, status int, res *core.ImportResult) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)

	log := slogFor(r)
	if status >= http.StatusInternalServerError {
		log.Error("request error", "status", status, "code", msg.Code, "error", err)
	} else {
		log.Warn("request error", "status", status, "code", msg.Code, "error", err)
	}

	if errors.Is(err, core.ErrTooManyImports) || errors.Is(err, storage.ErrBusy) {
		w.Header().Set("Retry-After", "30")
	}
	respondErrorJSON(w, msg, status, res)
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int, res *core.ImportResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Import:  res,
	})
}
