package httpapi

import (
	"net/http"

	json "github.com/goccy/go-json"

	"lorad/internal/session"
	"lorad/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps session error kinds to HTTP status codes. Anything the
// caller can fix is 4xx; engine-level failures stay 5xx.
func statusFor(err error) int {
	switch {
	case session.IsBadInput(err):
		return http.StatusBadRequest
	case session.IsBusy(err):
		return http.StatusTooManyRequests
	case session.IsModelNotLoaded(err):
		return http.StatusConflict
	case session.IsKind(err, session.KindTrainingNotInitialized):
		return http.StatusConflict
	case session.IsKind(err, session.KindBackendNotInitialized):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeError maps err to a status, counts backpressure, and replies.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue_full")
	}
	writeJSONError(w, status, err.Error())
}
