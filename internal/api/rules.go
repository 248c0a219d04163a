package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/classroom-core/internal/appliance"
	"github.com/nerrad567/classroom-core/internal/audit"
	"github.com/nerrad567/classroom-core/internal/automation"
)

// ruleRequest is the body of POST /rules and PUT /rules/{id}. Enabled
// defaults to true when omitted.
type ruleRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Enabled     *bool                  `json:"enabled"`
	Schedule    automation.Schedule    `json:"schedule"`
	Actions     appliance.ActionIntent `json:"actions"`
}

func (req ruleRequest) toRule(id string) *automation.Rule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &automation.Rule{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Enabled:     enabled,
		Schedule:    req.Schedule,
		Actions:     req.Actions,
	}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListRules(r.Context())
	if err != nil {
		s.logger.Error("listing rules", "error", err)
		writeInternalError(w, "failed to list rules")
		return
	}
	if rules == nil {
		rules = []automation.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "failed to get rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rule := req.toRule("")
	if err := s.rules.CreateRule(r.Context(), rule); err != nil {
		s.logRuleError("create", err)
		writeDomainError(w, err, "failed to create rule")
		return
	}
	s.recordRuleChange(r.Context(), audit.ActionCreate, rule.ID, rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rule := req.toRule(chi.URLParam(r, "id"))
	if err := s.rules.UpdateRule(r.Context(), rule); err != nil {
		s.logRuleError("update", err)
		writeDomainError(w, err, "failed to update rule")
		return
	}
	s.recordRuleChange(r.Context(), audit.ActionUpdate, rule.ID, rule.Name)
	updated, err := s.rules.GetRule(r.Context(), rule.ID)
	if err != nil {
		writeDomainError(w, err, "failed to get rule")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}

	rule, err := s.rules.SetEnabled(r.Context(), chi.URLParam(r, "id"), *req.Enabled)
	if err != nil {
		s.logRuleError("set enabled", err)
		writeDomainError(w, err, "failed to update rule")
		return
	}
	action := audit.ActionDisable
	if rule.Enabled {
		action = audit.ActionEnable
	}
	s.recordRuleChange(r.Context(), action, rule.ID, rule.Name)
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.rules.DeleteRule(r.Context(), id); err != nil {
		s.logRuleError("delete", err)
		writeDomainError(w, err, "failed to delete rule")
		return
	}
	s.recordRuleChange(r.Context(), audit.ActionDelete, id, "")
	w.WriteHeader(http.StatusNoContent)
}

// handleListFirings returns the scheduler's recent firings, newest first.
func (s *Server) handleListFirings(w http.ResponseWriter, _ *http.Request) {
	firings := []automation.Firing{}
	if s.scheduler != nil {
		if recent := s.scheduler.RecentFirings(); recent != nil {
			firings = recent
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"firings": firings,
		"count":   len(firings),
	})
}

func (s *Server) logRuleError(op string, err error) {
	if isClientError(err) {
		return
	}
	s.logger.Error("rule request failed", "op", op, "error", err)
}
