package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rpggio/tallyroom/internal/domain/counter"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error         string `json:"error"`
	RemainingTime int    `json:"remainingTime,omitempty"`
	Message       string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps counter errors to API responses. Anything that
// isn't a known outcome is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var limited *counter.RateLimitedError
	switch {
	case errors.As(err, &limited):
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:         "rate limited",
			RemainingTime: limited.RemainingSeconds,
			Message:       fmt.Sprintf("Please wait %d seconds before incrementing again", limited.RemainingSeconds),
		})
	case errors.Is(err, counter.ErrNotFound):
		writeError(w, http.StatusNotFound, "log entry not found")
	case errors.Is(err, counter.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, "invalid JSON document")
	case errors.Is(err, counter.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input")
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
