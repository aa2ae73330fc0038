// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/tomtom215/onsale/internal/api/docs" // swagger spec
	"github.com/tomtom215/onsale/internal/auth"
	"github.com/tomtom215/onsale/internal/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Middleware *ChiMiddlewareConfig

	// Tokens verifies bearer tokens on mutating routes. When nil those
	// routes answer 503 AUTH_NOT_CONFIGURED instead of running unguarded.
	Tokens *auth.JWTManager
}

// NewRouter builds the ops HTTP handler.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mw := NewChiMiddleware(cfg.Middleware)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(mw.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", nil)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.RateLimitCustom(RateLimitHealth))
		r.Get("/healthz", h.HealthLive)
		r.Get("/readyz", h.HealthReady)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
			httpSwagger.DeepLinking(true),
			httpSwagger.DocExpansion("list"),
			httpSwagger.DomID("swagger-ui"),
		))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(APISecurityHeaders())

		r.Get("/regions", h.Regions)
		r.Get("/pollers", h.Pollers)
		r.Get("/events", h.Events)
		r.Get("/artists", h.Artists)

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitCustom(RateLimitWrite))
			r.Use(requireOperator(cfg.Tokens))
			r.Put("/artists/{id}/notable", h.SetArtistNotable)
			r.Put("/events/{id}/reminder", h.ScheduleReminder)
			r.Delete("/events/{id}/reminder", h.ClearReminder)
		})
	})

	return r
}

func requireOperator(tokens *auth.JWTManager) func(http.Handler) http.Handler {
	if tokens != nil {
		return tokens.RequireToken(respondUnauthorized)
	}
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusServiceUnavailable, CodeAuthNotEnabled,
				"Operator tokens are not configured; set API_JWT_SECRET", nil)
		})
	}
}
