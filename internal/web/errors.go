package web

// errors.go maps domain errors to HTTP responses.
//
// Status codes are decided here and nowhere else. Every error body carries
// the user-facing message and support code from core.MapError; the
// technical error is logged with the request id and never sent to the
// client.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/fiscal/internal/core"
	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/logging"
	"github.com/JonMunkholm/fiscal/internal/store"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"erro"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor returns the HTTP status for err.
func statusFor(err error) int {
	var (
		unsupported *fiscal.UnsupportedFileError
		decode      *fiscal.DecodeError
		malformed   *fiscal.MalformedXMLError
		missing     *fiscal.MissingRequiredFieldError
		invalid     *fiscal.InvalidFieldFormatError
		validation  *fiscal.ValidationError
		transition  *fiscal.InvalidTransitionError
		tooLarge    *core.FileTooLargeError
	)

	switch {
	case errors.As(err, &unsupported),
		errors.As(err, &decode),
		errors.As(err, &malformed),
		errors.As(err, &missing),
		errors.As(err, &invalid),
		errors.As(err, &validation),
		errors.As(err, &transition):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrTooManyUploads), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrUniqueViolation):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user-facing JSON body.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	writeJSON(w, r, status, ErrorResponse{
		Success: false,
		Error:   userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// writeJSON encodes v as the response body. Encoding errors are logged
// since the status line is already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error",
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
}
