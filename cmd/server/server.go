// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/codr1/leaguedesk/internal/api"
	"github.com/codr1/leaguedesk/internal/api/auth"
	"github.com/codr1/leaguedesk/internal/api/categories"
	"github.com/codr1/leaguedesk/internal/api/matches"
	"github.com/codr1/leaguedesk/internal/config"
	"github.com/codr1/leaguedesk/internal/livehub"
	"github.com/codr1/leaguedesk/internal/matchphase"
	"github.com/codr1/leaguedesk/internal/ratelimit"
)

func newServer(cfg *config.Config, hub *livehub.Hub, registry *matchphase.Registry, limiter *ratelimit.Limiter) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		auth.WithClerkSession,
		api.WithTenant(cfg.ActiveTenantSlug()),
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithCORS(cfg.App.AllowedOrigins),
	)

	// Register routes
	registerRoutes(router, cfg, hub, registry, limiter)

	// WriteTimeout is left unset: websocket connections stay open for the
	// length of a match.
	return &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, hub *livehub.Hub, registry *matchphase.Registry, limiter *ratelimit.Limiter) {
	requireOperator := auth.RequireOperator(cfg.Auth.Required, cfg.ActiveTenantSlug())
	throttle := limiter.Middleware(cfg.RateLimit.TrustProxy)
	operatorOnly := func(next http.Handler) http.Handler {
		return requireOperator(throttle(next))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Standings
	mux.HandleFunc("GET /api/v1/categories/{id}/standings", categories.HandleStandings)

	// Live match control
	mux.Handle("POST /api/v1/matches/{id}/open", operatorOnly(http.HandlerFunc(matches.HandleOpenMatch)))
	mux.HandleFunc("GET /api/v1/matches/{id}/phase", matches.HandleMatchPhase)
	mux.Handle("POST /api/v1/matches/{id}/transitions", operatorOnly(http.HandlerFunc(matches.HandleTransition)))
	mux.HandleFunc("GET /api/v1/matches/{id}/events", matches.HandleMatchEvents)

	// Venue screens
	ws := livehub.NewHandler(hub, snapshotFromRegistry(registry), cfg.App.AllowedOrigins)
	mux.HandleFunc("GET /ws/matches/{id}", ws.ServeWs)
}

func snapshotFromRegistry(registry *matchphase.Registry) livehub.SnapshotFunc {
	return func(matchID int64) (matchphase.Snapshot, bool) {
		controller, err := registry.Get(matchID)
		if err != nil {
			return matchphase.Snapshot{}, false
		}
		return controller.Snapshot(), true
	}
}
