package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/classroom-core/internal/appliance"
	"github.com/nerrad567/classroom-core/internal/control"
)

// controlRequest is the body of POST /control.
type controlRequest struct {
	State *appliance.DeviceState `json:"state"`
}

// handleLatest returns the current snapshot, or {} before the first report.
func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.store.Read()
	if !ok {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleControl publishes a complete device state.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w) {
		return
	}
	var req controlRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.State == nil {
		writeBadRequest(w, "state is required")
		return
	}

	msg, err := s.control.SetState(r.Context(), *req.State, control.SourceAPI)
	if err != nil {
		s.logControlError(r, "set state", err)
		writeDomainError(w, err, "failed to send control message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleControlIntent merges a partial intent into the current state and
// publishes the result.
func (s *Server) handleControlIntent(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w) {
		return
	}
	var intent appliance.ActionIntent
	if !decodeBody(w, r, &intent) {
		return
	}

	msg, err := s.control.ApplyIntent(r.Context(), intent, control.SourceIntent)
	if err != nil {
		s.logControlError(r, "apply intent", err)
		writeDomainError(w, err, "failed to send control message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleControlCommand executes a semantic command such as "LED 2 off".
func (s *Server) handleControlCommand(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w) {
		return
	}
	var cmd appliance.Command
	if !decodeBody(w, r, &cmd) {
		return
	}

	res, err := s.control.Execute(r.Context(), cmd)
	if err != nil {
		s.logControlError(r, "execute command", err)
		writeDomainError(w, err, "failed to send control message")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) requireControl(w http.ResponseWriter) bool {
	if s.control == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "control is not configured")
		return false
	}
	return true
}

func (s *Server) logControlError(r *http.Request, op string, err error) {
	if isClientError(err) {
		return
	}
	s.logger.Error("control request failed", "op", op, "error", err,
		"request_id", r.Context().Value(ctxKeyRequestID))
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
// Intent and state decoding errors carry the appliance sentinel and keep
// their message.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF):
		writeBadRequest(w, "request body is required")
	case errors.Is(err, appliance.ErrInvalidIntent):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
	}
	return false
}
