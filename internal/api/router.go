// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/investlink/relay/internal/config"
	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/middleware"
)

// healthRateLimit is permissive so monitoring can poll freely.
var healthRateLimit = struct {
	requests int
	window   time.Duration
}{1000, time.Minute}

// Router wires handlers and middleware into the chi mux.
type Router struct {
	cfg     *config.Config
	handler *Handler
}

// NewRouter creates a router around the given handler set.
func NewRouter(cfg *config.Config, handler *Handler) *Router {
	return &Router{cfg: cfg, handler: handler}
}

// chiMiddleware adapts http.HandlerFunc middleware to chi's
// func(http.Handler) http.Handler form.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Setup builds the full route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	// The socket endpoint skips the request logger: a log line that appears
	// only when a connection finally closes is more confusing than useful.
	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Get("/ws", router.handler.WebSocket)
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(healthRateLimit.requests, healthRateLimit.window))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Get("/", router.handler.Health)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(chiMiddleware(middleware.RequestLogger))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(httprate.LimitByIP(router.cfg.Security.EmitRateLimit, router.cfg.Security.EmitRateWindow))
		r.Use(router.requireServiceToken)

		r.Post("/emit", router.handler.Emit)
		r.Get("/connections", router.handler.Connections)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requireServiceToken guards the internal routes with the shared service
// token. An empty configured token disables the routes entirely rather than
// leaving them open.
func (router *Router) requireServiceToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := router.cfg.Security.ServiceToken
		if token == "" {
			RespondError(w, r, http.StatusNotFound, ErrCodeNotFound, "internal endpoints are disabled", nil)
			return
		}

		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			logging.Warn().
				Str("remote_addr", r.RemoteAddr).
				Str("path", r.URL.Path).
				Msg("rejected internal request with bad service token")
			RespondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid service token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
