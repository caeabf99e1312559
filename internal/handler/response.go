package handler

// RESPONSE HELPERS:
// Every body this package sends goes through writeJSON, so the
// Content-Type header and encoding error handling live in one place.
//
// TWO KINDS OF FAILURE:
//   - Execution failures (bad source, timeout, tool crash) are NOT HTTP errors.
//     They are answered with 200 and {"success": false, "error": "..."}, because
//     the request itself was handled correctly.
//   - Routing failures (unknown path, wrong method) never reach a handler's
//     business logic. They get a real 4xx status and an ErrorResponse body:
//     {"error": "not_found", "message": "route not found at /api/nope"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/runbroker/internal/apperror"
)

// ErrorResponse is the body of every non-200 response.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers and status go out before the body; nothing can be changed after Encode.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// errors.Is walks the whole chain, so a wrapped AppError still maps:
//
//	fmt.Errorf("routing: %w", apperror.NotFound("route", path))
//	→ AppError{Err: ErrNotFound} → 404
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrMethodNotAllowed):
			status = http.StatusMethodNotAllowed
			errorType = "method_not_allowed"
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable
			errorType = "unavailable"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Never echo raw internal errors; they may carry filesystem paths.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// NotFound answers requests for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperror.NotFound("route", r.URL.Path))
}

// MethodNotAllowed answers known routes hit with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperror.MethodNotAllowed(r.Method, r.URL.Path))
}
