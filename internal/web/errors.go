package web

// errors.go provides unified error responses for the API.
//
// Every error is logged server-side with full technical detail and the
// request id, then mapped with core.MapError to a user-facing message and
// support code for the JSON body.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/phantom/internal/core"
	"github.com/JonMunkholm/phantom/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	RunID   string `json:"run_id,omitempty"`
}

// respondError logs err and writes its user message with status.
// A status of 0 is derived from err with statusFor.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int, runID string) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	writeJSON(w, r, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		RunID:   runID,
	})
}

// statusFor picks the HTTP status for an import error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrSourceTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrSourceFormat):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrStoreConnection):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
