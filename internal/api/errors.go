// Package api provides the HTTP handlers of the leaderboard API and its
// standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/skylight/leaderboard/internal/leaderboard"
	"github.com/skylight/leaderboard/internal/middleware"
	"github.com/skylight/leaderboard/internal/views"
)

// Error codes carried in the error envelope and in the request log.
const (
	ErrCodeValidation       = "validation_error"   // invalid query parameter
	ErrCodeNotFound         = "not_found"          // unknown dataset, run or view
	ErrCodeRateLimited      = "rate_limited"       // written by the rate limit middleware
	ErrCodeInternal         = "internal_error"     // store or pipeline failure
	ErrCodeBadRequest       = "bad_request"        // malformed request
	ErrCodeMethodNotAllowed = "method_not_allowed" // anything but GET on a route
	ErrCodeNotReady         = "not_ready"          // combined views still building
)

// ErrorResponse is the body of every API error:
// {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code is logged by the logging middleware for all 4xx and 5xx
// responses when ctx carries it:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Dataset not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeCodedError sets the error code on the request context and writes the
// error with the status mapped from code.
func writeCodedError(w http.ResponseWriter, r *http.Request, code, message string) {
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}

// writeServiceError maps an error from the leaderboard pipelines or the view
// cache to a response. what names the resource for the 500 message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, leaderboard.ErrDatasetNotFound):
		writeCodedError(w, r, ErrCodeNotFound, "Dataset not found")
	case errors.Is(err, leaderboard.ErrNoCompletedRun):
		writeCodedError(w, r, ErrCodeNotFound, "No completed experimental run found")
	case errors.Is(err, views.ErrNotReady):
		w.Header().Set("Retry-After", "5")
		writeCodedError(w, r, ErrCodeNotReady, "Combined views are being built, please retry shortly")
	case errors.Is(err, views.ErrUnknownView):
		writeCodedError(w, r, ErrCodeNotFound, "Unknown combined view")
	default:
		slog.ErrorContext(r.Context(), "request failed", "resource", what, "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to fetch "+what)
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status for an error code. Unknown codes
// map to 500.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeNotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
