package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/requestid"
)

// Response is the body shape of every JSON endpoint.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code      string              `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
	Details   map[string][]string `json:"details,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

// HTTPError is an error with a status code and a stable machine key.
type HTTPError struct {
	Code int
	Key  string
}

func (e HTTPError) Error() string {
	return e.Key
}

var (
	ErrBadRequest   = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrForbidden    = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrNotFound     = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrInternal     = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
)

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func ok(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeJSON(w, status, Response{Data: data, Meta: meta})
}

type errorInfo struct {
	status  int
	code    string
	message string
	details map[string][]string
	level   slog.Level
}

// classify maps domain errors to HTTP responses. Unknown errors become 500s
// with a generic message.
func classify(err error) errorInfo {
	info := errorInfo{
		status:  http.StatusInternalServerError,
		code:    ErrInternal.Key,
		message: "An error occurred processing your request",
	}

	var (
		httpErr  HTTPError
		validErr ValidationError
	)
	switch {
	case errors.As(err, &validErr):
		info.status = http.StatusUnprocessableEntity
		info.code = "validation_failed"
		info.message = "Validation failed"
		info.details = validErr
	case errors.As(err, &httpErr):
		info.status = httpErr.Code
		info.code = httpErr.Key
		info.message = http.StatusText(httpErr.Code)
	case errors.Is(err, notifications.ErrRecipientNotFound):
		info.status = http.StatusNotFound
		info.code = "recipient_not_found"
		info.message = "Recipient not found"
	case errors.Is(err, notifications.ErrNotFound):
		info.status = http.StatusNotFound
		info.code = ErrNotFound.Key
		info.message = "Notification not found"
	case errors.Is(err, notifications.ErrInvalidNotification):
		info.status = http.StatusUnprocessableEntity
		info.code = "invalid_notification"
		info.message = err.Error()
	}

	info.level = slog.LevelError
	if info.status < http.StatusInternalServerError {
		info.level = slog.LevelWarn
	}
	return info
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	info := classify(err)
	h.logger.LogAttrs(r.Context(), info.level, "request error",
		logger.Error(err),
		slog.Int("status_code", info.status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	writeJSON(w, info.status, Response{Error: &ErrorDetail{
		Code:      info.code,
		Message:   info.message,
		Details:   info.details,
		RequestID: requestid.FromContext(r.Context()),
	}})
}
