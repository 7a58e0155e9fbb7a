package httpapi

import (
	"encoding/json"
	"net/http"

	"pumpd/internal/loop"
	"pumpd/pkg/types"
)

// HTTPError lets a service supply its own status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForLoopError maps the loop error taxonomy to HTTP status codes.
// Pump-state and manual-override conflicts are 409, malformed or refused
// requests 400, glucose precondition failures 422, and device transport
// failures 502.
func statusForLoopError(err error) int {
	switch {
	case loop.IsInvalidPumpState(err):
		return http.StatusConflict
	case loop.IsManualTempError(err):
		return http.StatusConflict
	case loop.IsApsError(err):
		return http.StatusBadRequest
	case loop.IsGlucoseError(err):
		return http.StatusUnprocessableEntity
	case loop.IsPumpError(err):
		return http.StatusBadGateway
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode()
		}
		return http.StatusInternalServerError
	}
}
