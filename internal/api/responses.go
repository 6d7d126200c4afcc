package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse defines the standard error response structure.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// RespondWithJSON writes a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes a JSON error response with the given status code
// and message, tagging it with the request id for correlation. 5xx
// responses are logged at error level, everything else at debug.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	reqID := middleware.GetReqID(r.Context())

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"status", status,
			"message", message,
			"error", err,
			"request_id", reqID,
			"path", r.URL.Path,
			"method", r.Method)
	} else {
		slog.Debug("sending error response",
			"status", status,
			"message", message,
			"request_id", reqID,
			"path", r.URL.Path,
			"method", r.Method)
	}

	RespondWithJSON(w, r, status, ErrorResponse{
		Error:     message,
		RequestID: reqID,
	})
}
