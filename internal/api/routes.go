package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes wires all HTTP routes onto a chi router. Everything under
// /api requires an organization context; health and metrics do not.
func SetupRoutes(h *Handlers, hc *HealthChecker, resolver *OrgResolver, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Standard middleware stack.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health and metrics sit outside the org-scoped API.
	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(resolver.RequireOrg)

		r.Route("/inbox", func(r chi.Router) {
			r.Get("/items", h.HandleListItems)
			r.Get("/items/{itemID}", h.HandleItemDetail)
			r.Post("/items/{itemID}/action", h.HandleApplyAction)
			r.Post("/bulk", h.HandleBulkApply)
			r.Get("/sync", h.HandleSyncState)
			r.Post("/sync", h.HandleTriggerSync)
			r.Get("/stats", h.HandleStats)
		})

		r.Route("/guardrails", func(r chi.Router) {
			r.Get("/", h.HandleGetGuardrails)
			r.Patch("/", h.HandleUpdateGuardrails)
		})

		r.Get("/system/status", h.GetSystemStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})

	return r
}
