package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/classroom-core/internal/audit"
)

// handleListAudit returns the activity trail, newest first.
//
// Query parameters: action, entity_type, entity_id, since (RFC 3339),
// limit and offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail is not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	var err error
	if v := q.Get("since"); v != "" {
		if filter.Since, err = time.Parse(time.RFC3339, v); err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
	}

	page, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// recordRuleChange writes a rule change to the audit trail if one is
// configured. Failures are logged only.
func (s *Server) recordRuleChange(ctx context.Context, action, ruleID, ruleName string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, &audit.Entry{
		Action:     action,
		EntityType: audit.EntityRule,
		EntityID:   ruleID,
		Actor:      audit.ActorFrom(ctx),
		Source:     "api",
		Details:    map[string]any{"name": ruleName},
	})
	if err != nil {
		s.logger.Warn("recording rule audit entry", "rule_id", ruleID, "action", action, "error", err)
	}
}
