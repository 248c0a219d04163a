package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/classroom-core/internal/appliance"
	"github.com/nerrad567/classroom-core/internal/automation"
	"github.com/nerrad567/classroom-core/internal/control"
	"github.com/nerrad567/classroom-core/internal/history"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "service_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// isClientError reports whether err is caused by the request rather than
// the server.
func isClientError(err error) bool {
	for _, target := range []error{
		automation.ErrRuleNotFound,
		automation.ErrRuleExists,
		automation.ErrInvalidRule,
		automation.ErrInvalidName,
		automation.ErrInvalidSchedule,
		automation.ErrNoActions,
		appliance.ErrInvalidIntent,
		appliance.ErrInvalidCommand,
		appliance.ErrUnsupportedCommand,
		history.ErrInvalidQuery,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeDomainError maps package sentinel errors to HTTP responses. fallback
// is the message used for unexpected errors, which are logged by the caller.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, automation.ErrRuleNotFound):
		writeNotFound(w, "rule not found")
	case errors.Is(err, automation.ErrRuleExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, automation.ErrInvalidRule),
		errors.Is(err, automation.ErrInvalidName),
		errors.Is(err, automation.ErrInvalidSchedule),
		errors.Is(err, automation.ErrNoActions),
		errors.Is(err, appliance.ErrInvalidIntent),
		errors.Is(err, appliance.ErrInvalidCommand),
		errors.Is(err, appliance.ErrUnsupportedCommand),
		errors.Is(err, history.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, control.ErrPublishFailed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "control message could not be published")
	default:
		writeInternalError(w, fallback)
	}
}
