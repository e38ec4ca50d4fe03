// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package relay

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/investlink/relay/internal/auth"
	"github.com/investlink/relay/internal/config"
	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/metrics"
)

// Handshake authenticates new connections and binds them into the registry.
// Exactly one handshake runs per raw connection, before any other frame is
// honored.
type Handshake struct {
	registry *Registry
	verifier auth.TokenVerifier
	cfg      config.RelayConfig
}

// NewHandshake creates a handshake gate over the registry and verifier.
func NewHandshake(registry *Registry, verifier auth.TokenVerifier, cfg config.RelayConfig) *Handshake {
	return &Handshake{registry: registry, verifier: verifier, cfg: cfg}
}

// Serve runs the full lifetime of one WebSocket connection: authenticate the
// first frame, register, then hold the read side open until the peer goes
// away. It blocks until the connection is done; the HTTP handler calls it on
// the upgraded connection's goroutine.
//
// Protocol, in order:
//  1. The first frame must be an auth request within the handshake timeout.
//  2. The token is verified and the verified identity must equal the claimed
//     one. Any failure gets an auth_error frame and a policy-violation close.
//  3. On success the connection is registered and auth_success is sent.
//  4. Subsequent inbound frames are ignored; the post-auth protocol is
//     server-to-client only.
//  5. When the read side ends, the identity's entry is removed (guarded, so
//     a newer connection for the same identity survives).
func (h *Handshake) Serve(ws *websocket.Conn) {
	conn := NewConn(ws, h.cfg)

	ws.SetReadLimit(h.cfg.MaxMessageSize)

	// The write pump must not start until authentication settles: until
	// then this goroutine is the connection's only writer, so reject can
	// put auth_error on the wire without racing a ping.
	identity, ok := h.authenticate(conn)
	if !ok {
		return
	}

	go conn.writePump()

	conn.bind(identity)
	h.registry.Register(identity.UserID, conn)
	metrics.HandshakeTotal.WithLabelValues(metrics.HandshakeSuccess).Inc()

	if err := conn.sendEvent(&AuthSuccess{}); err != nil {
		h.registry.Remove(identity.UserID, conn)
		conn.Close()
		return
	}

	h.readLoop(conn)

	h.registry.Remove(identity.UserID, conn)
	conn.Close()
}

// authenticate reads and verifies the auth frame. On failure it writes
// auth_error, closes the connection, and records the outcome.
func (h *Handshake) authenticate(conn *Conn) (auth.Identity, bool) {
	ws := conn.ws
	if err := ws.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout)); err != nil {
		conn.Close()
		return auth.Identity{}, false
	}

	_, frame, err := ws.ReadMessage()
	if err != nil {
		metrics.HandshakeTotal.WithLabelValues(metrics.HandshakeTimeout).Inc()
		logging.Debug().Err(err).Uint64("conn_id", conn.ID()).Msg("connection closed before auth frame")
		conn.Close()
		return auth.Identity{}, false
	}

	event, err := Decode(frame)
	if err != nil {
		h.reject(conn, metrics.HandshakeMalformed, "authentication required")
		return auth.Identity{}, false
	}

	req, isAuth := event.(*Auth)
	if !isAuth {
		h.reject(conn, metrics.HandshakeMalformed, "authentication required")
		return auth.Identity{}, false
	}

	identity, err := h.verifier.Verify(req.Token)
	if err != nil {
		h.reject(conn, metrics.HandshakeInvalidToken, "invalid credentials")
		return auth.Identity{}, false
	}

	if identity.UserID != req.UserID {
		logging.Warn().
			Str("claimed_user_id", req.UserID).
			Str("verified_user_id", identity.UserID).
			Uint64("conn_id", conn.ID()).
			Msg("handshake identity mismatch")
		h.reject(conn, metrics.HandshakeIdentityMismatch, "invalid credentials")
		return auth.Identity{}, false
	}

	return identity, true
}

// reject sends auth_error directly on the socket and closes with a policy
// violation. The error frame is best-effort; the close always happens.
func (h *Handshake) reject(conn *Conn, outcome, message string) {
	metrics.HandshakeTotal.WithLabelValues(outcome).Inc()

	if frame, err := Encode(&AuthError{Message: message}); err == nil {
		_ = conn.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.ws.WriteMessage(websocket.TextMessage, frame)
	}
	conn.closeWith(websocket.ClosePolicyViolation, message)
}

// readLoop keeps the read side of an authenticated connection open so close
// and pong frames are processed. Inbound data frames are ignored: clients
// have nothing to say after authenticating.
func (h *Handshake) readLoop(conn *Conn) {
	ws := conn.ws
	if err := ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				logging.Debug().Err(err).Uint64("conn_id", conn.ID()).Msg("read loop ended")
			}
			return
		}
	}
}
