// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/investlink/relay/internal/config"
	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/relay"
)

// Handler bundles the relay collaborators behind the HTTP endpoints.
type Handler struct {
	cfg       *config.Config
	registry  *relay.Registry
	router    *relay.Router
	handshake *relay.Handshake
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewHandler builds the handler set. The upgrader's origin check comes from
// security.allowed_origins: empty keeps gorilla's same-host default, "*"
// allows everything, anything else is an exact-match allowlist.
func NewHandler(cfg *config.Config, registry *relay.Registry, router *relay.Router, handshake *relay.Handshake) *Handler {
	return &Handler{
		cfg:       cfg,
		registry:  registry,
		router:    router,
		handshake: handshake,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Security.AllowedOrigins),
		},
		startTime: time.Now(),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		// nil keeps gorilla's same-host policy.
		return nil
	}
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin header.
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// WebSocket upgrades the request and runs the connection through the auth
// handshake. The handler blocks for the lifetime of the connection.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade rejected")
		return
	}
	h.handshake.Serve(ws)
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	UptimeSec   int64  `json:"uptime_seconds"`
}

// Health reports liveness and the registered connection count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	RespondSuccess(w, http.StatusOK, HealthStatus{
		Status:      "ok",
		Connections: h.registry.Len(),
		UptimeSec:   int64(time.Since(h.startTime).Seconds()),
	})
}

// Emit relays an event on behalf of an out-of-process emitter. Delivery is
// best effort: a missing or dead receiver is not an error, so anything
// well-formed gets a 202. Only malformed requests see a 4xx.
func (h *Handler) Emit(w http.ResponseWriter, r *http.Request) {
	var req EmitRequest
	if err := decodeAndValidate(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), validationDetails(err))
		return
	}

	event, err := relay.Decode(req.Event)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "unrecognized event frame", nil)
		return
	}
	switch event.Kind() {
	case relay.TypeAuth, relay.TypeAuthSuccess, relay.TypeAuthError:
		RespondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "handshake frames cannot be emitted", nil)
		return
	}

	if req.Broadcast {
		h.router.Broadcast(event)
	} else {
		h.router.Send(req.ReceiverID, event)
	}
	RespondSuccess(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// ConnectionList is the payload of the connections endpoint.
type ConnectionList struct {
	Count      int      `json:"count"`
	Identities []string `json:"identities"`
}

// Connections lists the registered user ids, for operational inspection.
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.Identities()
	RespondSuccess(w, http.StatusOK, ConnectionList{
		Count:      len(ids),
		Identities: ids,
	})
}
