package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/classroom-core/internal/auth"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket: ticket checked in the handler
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/auth/me", s.handleMe)

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermStateRead))
				r.Get("/latest", s.handleLatest)
				r.Get("/available-dates", s.handleAvailableDates)
				r.Post("/query-history", s.handleQueryHistory)
				r.Get("/energy-report", s.handleEnergyReport)
				r.Get("/scheduler/firings", s.handleListFirings)
				r.Get("/metrics", s.handleMetrics)
				r.Get("/rules", s.handleListRules)
				r.Get("/rules/{id}", s.handleGetRule)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceOperate))
				r.Post("/control", s.handleControl)
				r.Post("/control/intent", s.handleControlIntent)
				r.Post("/control/command", s.handleControlCommand)
			})

			r.With(requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAudit)

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermRulesManage))
				r.Post("/rules", s.handleCreateRule)
				r.Put("/rules/{id}", s.handleUpdateRule)
				r.Patch("/rules/{id}/enabled", s.handleSetRuleEnabled)
				r.Delete("/rules/{id}", s.handleDeleteRule)
			})
		})
	})

	if s.panel != nil {
		r.Handle("/*", s.panel)
	}

	return r
}

// handleHealth reports the server version and the health of each
// infrastructure component. Any failing component yields 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.components[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
