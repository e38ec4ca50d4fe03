// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

// Package main is the entry point for the InvestLink relay server.
//
// The relay keeps one authenticated WebSocket per user and pushes
// notification and call-signaling events to whoever is online. Delivery is
// best effort: offline users miss events, they are not queued.
//
// # Application Architecture
//
// The server initializes components in this order:
//
//  1. Configuration: layered defaults, config.yaml, environment (koanf v2)
//  2. Token verifier: HS256 JWT sharing the platform's secret
//  3. Relay core: connection registry, event router, auth handshake
//  4. HTTP server: /ws upgrade, internal emit ingress, health, metrics
//  5. Supervision tree: registry and HTTP server under suture
//
// # Configuration
//
// Highest priority wins:
//   - Environment variables (SECURITY_JWT_SECRET, SERVER_PORT, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// SECURITY_JWT_SECRET is mandatory and must be at least 32 characters.
// SECURITY_SERVICE_TOKEN enables the /internal routes for out-of-process
// emitters; leaving it empty keeps them disabled.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: the HTTP server drains
// in-flight requests and every registered connection receives a close frame.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/investlink/relay/internal/api"
	"github.com/investlink/relay/internal/auth"
	"github.com/investlink/relay/internal/config"
	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/relay"
	"github.com/investlink/relay/internal/supervisor"
	"github.com/investlink/relay/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors surface through the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("internal_routes", cfg.Security.ServiceToken != "").
		Msg("Starting relay")

	verifier, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT verifier")
	}

	registry := relay.NewRegistry()
	eventRouter := relay.NewRouter(registry)
	handshake := relay.NewHandshake(registry, verifier, cfg.Relay)

	handler := api.NewHandler(cfg, registry, eventRouter, handshake)
	httpRouter := api.NewRouter(cfg, handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      httpRouter.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// zerolog bridged to slog for sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewRegistryService(registry))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Relay listening")

	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
			for _, svc := range unstopped {
				logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
			}
		}
		logging.Fatal().Err(err).Msg("Supervisor tree terminated abnormally")
	}

	logging.Info().Msg("Relay stopped")
}
