// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelier/umbra/internal/config"
	"github.com/avelier/umbra/internal/middleware"
)

// Router assembles the HTTP surface.
type Router struct {
	handler *Handler
	health  *HealthHandler
	auth    *AppAuthenticator
	cfg     *config.APIConfig
}

// NewRouter creates the router over the ingestion handler, health handler,
// and app authenticator.
func NewRouter(handler *Handler, health *HealthHandler, auth *AppAuthenticator, cfg *config.APIConfig) *Router {
	return &Router{
		handler: handler,
		health:  health,
		auth:    auth,
		cfg:     cfg,
	}
}

// Setup configures all routes and the middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", AppKeyHeader},
		MaxAge:         300,
	}))

	// Health endpoints: permissive limit so monitors can poll freely
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, router.cfg.RateLimitWindow))
		r.Get("/", router.health.Live)
		r.Get("/live", router.health.Live)
		r.Get("/ready", router.health.Ready)
	})

	// Ingestion endpoints: IP rate limit before auth, app budget after
	r.Route("/api/v1/events", func(r chi.Router) {
		r.Use(router.ipRateLimit())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.auth.Middleware)
		r.Post("/", router.handler.IngestEvent)
		r.Post("/batch", router.handler.IngestBatch)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ipRateLimit is the pre-auth request limit keyed by client IP, protecting
// the app registry lookup itself from abuse.
func (router *Router) ipRateLimit() func(http.Handler) http.Handler {
	if router.cfg.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow)
}
