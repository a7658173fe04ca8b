package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/occasync/occasync"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP status codes. Unknown
// errors are 500s with a generic body so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case occasync.IsValidation(err):
		writeErrorMessage(w, http.StatusBadRequest, messageOf(err, "invalid input"))
	case occasync.IsUnauthorized(err):
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
	case occasync.IsForbidden(err):
		writeErrorMessage(w, http.StatusForbidden, "forbidden")
	case occasync.IsNotFound(err):
		writeErrorMessage(w, http.StatusNotFound, messageOf(err, "not found"))
	case occasync.IsConflict(err):
		writeErrorMessage(w, http.StatusConflict, messageOf(err, "conflict"))
	case occasync.IsRateLimited(err):
		writeErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
	default:
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// messageOf surfaces a handler-provided message attached via apiError,
// falling back to a taxonomy default
func messageOf(err error, fallback string) string {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.message
	}
	return fallback
}

// apiError pairs a sentinel from the error taxonomy with a response
// message the client is allowed to see
type apiError struct {
	sentinel error
	message  string
}

func (e *apiError) Error() string { return e.message }

func (e *apiError) Unwrap() error { return e.sentinel }

func badRequest(msg string) error {
	return &apiError{sentinel: occasync.ErrValidation, message: msg}
}

func notFound(msg string) error {
	return &apiError{sentinel: occasync.ErrNotFound, message: msg}
}

func conflict(msg string) error {
	return &apiError{sentinel: occasync.ErrConflict, message: msg}
}
