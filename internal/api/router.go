// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argus-vision/argus/internal/config"
)

// Router assembles the HTTP control surface.
type Router struct {
	cfg      config.ServerConfig
	handlers *Handlers
}

// NewRouter creates a router over the given handlers.
func NewRouter(cfg config.ServerConfig, handlers *Handlers) *Router {
	return &Router{cfg: cfg, handlers: handlers}
}

// Setup builds the chi handler tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	// Health endpoints get permissive limiting so monitoring can poll
	// freely.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/live", rt.handlers.HealthLive)
		r.Get("/ready", rt.handlers.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.rateLimit())
		r.Use(securityHeaders())

		r.Post("/monitor/start", rt.handlers.MonitorStart)
		r.Post("/monitor/stop", rt.handlers.MonitorStop)
		r.Get("/monitor/status", rt.handlers.MonitorStatus)

		r.Get("/alerts", rt.handlers.Alerts)

		r.Post("/historical", rt.handlers.HistoricalSubmit)
		r.Get("/historical/{id}", rt.handlers.HistoricalStatus)
		r.Delete("/historical/{id}", rt.handlers.HistoricalCancel)
	})

	// The websocket feed sits outside the JSON rate limiter; upgrades are
	// long-lived and limited by connection count, not request rate.
	r.Get("/ws", rt.handlers.WebSocket)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// rateLimit limits requests per minute per client IP. Zero disables it.
func (rt *Router) rateLimit() func(http.Handler) http.Handler {
	if rt.cfg.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(rt.cfg.RateLimit, time.Minute)
}

// securityHeaders hardens API responses for direct exposure.
func securityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}
