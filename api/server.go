/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Authenticate:  Resolve the operator from the bearer token
  2. RequestLogger: Request id + zap access log
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the counter frontend

ROUTE GROUPS:
  /api/members/*   Member management, search, consume, recharge, points
  /api/settings    Point rate and tier thresholds
  /api/reports/*   Read-only summaries
  /api/scenarios/* Demo data (only when Handler.Demo is set)
  /healthz         Liveness

Every /api route declares the capability it needs (see guard.go).

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/member-ledger/config"
)

// RouterOptions carries the non-handler parts of router configuration.
type RouterOptions struct {
	Auth           config.AuthConfig
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(Authenticate(opts.Auth))
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.With(Require(CapMemberView)).Get("/", h.ListMembers)
			r.With(Require(CapMemberManage)).Post("/", h.CreateMember)
			r.With(Require(CapMemberView)).Get("/search", h.SearchMember)

			r.Route("/{id}", func(r chi.Router) {
				r.With(Require(CapMemberView)).Get("/", h.GetMember)
				r.With(Require(CapMemberManage)).Delete("/", h.DeleteMember)
				r.With(Require(CapMemberView)).Get("/history", h.GetHistory)
				r.With(Require(CapCashier)).Post("/consume", h.Consume)
				r.With(Require(CapCashier)).Post("/recharge", h.Recharge)
				r.With(Require(CapMemberManage)).Post("/points", h.AdjustPoints)
			})
		})

		// Settings routes
		r.With(Require(CapMemberView)).Get("/settings", h.GetSettings)
		r.With(Require(CapSettingsManage)).Put("/settings", h.UpdateSettings)

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Use(Require(CapReports))
			r.Get("/summary", h.GetSummary)
			r.Get("/tiers", h.GetTierCounts)
		})

		// Scenario routes
		if h.Demo != nil {
			r.Route("/scenarios", func(r chi.Router) {
				r.Use(Require(CapSettingsManage))
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
