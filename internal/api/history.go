package api

import (
	"net/http"

	"github.com/nerrad567/classroom-core/internal/history"
)

func (s *Server) handleAvailableDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.history.AvailableDates(r.Context())
	if err != nil {
		s.logger.Error("listing available dates", "error", err)
		writeInternalError(w, "failed to list available dates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	var q history.Query
	if !decodeBody(w, r, &q) {
		return
	}
	if q.Unit == "" {
		q.Unit = history.Hour
	}

	res, err := s.history.Query(r.Context(), q)
	if err != nil {
		s.logHistoryError("query history", err)
		writeDomainError(w, err, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleEnergyReport serves GET /energy-report?start=YYYY-MM-DD&end=YYYY-MM-DD.
func (s *Server) handleEnergyReport(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		writeBadRequest(w, "start and end query parameters are required")
		return
	}

	report, err := s.history.EnergyReport(r.Context(), start, end)
	if err != nil {
		s.logHistoryError("energy report", err)
		writeDomainError(w, err, "failed to build energy report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) logHistoryError(op string, err error) {
	if isClientError(err) {
		return
	}
	s.logger.Error("history request failed", "op", op, "error", err)
}
