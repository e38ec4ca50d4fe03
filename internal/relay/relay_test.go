// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package relay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/investlink/relay/internal/auth"
	"github.com/investlink/relay/internal/config"
	"github.com/investlink/relay/internal/logging"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// testRelayConfig returns transport settings tight enough for fast tests.
func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		SendBuffer:       8,
		WriteTimeout:     2 * time.Second,
		PongTimeout:      10 * time.Second,
		MaxMessageSize:   32 * 1024,
		HandshakeTimeout: 2 * time.Second,
	}
}

// staticVerifier resolves fixed tokens to fixed identities.
type staticVerifier map[string]auth.Identity

func (v staticVerifier) Verify(token string) (auth.Identity, error) {
	identity, ok := v[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return identity, nil
}

// newHandshakeServer starts a test server that runs the full handshake on
// every incoming connection.
func newHandshakeServer(t *testing.T, registry *Registry, verifier auth.TokenVerifier) *httptest.Server {
	t.Helper()
	return newHandshakeServerWithConfig(t, registry, verifier, testRelayConfig())
}

// newHandshakeServerWithConfig is newHandshakeServer with explicit transport
// settings, for tests that need unusual timeouts.
func newHandshakeServerWithConfig(t *testing.T, registry *Registry, verifier auth.TokenVerifier, cfg config.RelayConfig) *httptest.Server {
	t.Helper()
	hs := NewHandshake(registry, verifier, cfg)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		hs.Serve(ws)
	}))
	t.Cleanup(server.Close)
	return server
}

// dial opens a raw WebSocket connection to the test server.
func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return ws
}

// authenticate performs the client half of the handshake and waits for the
// server's verdict frame.
func authenticate(t *testing.T, ws *websocket.Conn, userID, token string) Event {
	t.Helper()
	frame, err := Encode(&Auth{UserID: userID, Token: token})
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("failed to send auth frame: %v", err)
	}
	return readEvent(t, ws, 2*time.Second)
}

// readEvent reads and decodes one frame with a deadline.
func readEvent(t *testing.T, ws *websocket.Conn, timeout time.Duration) Event {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatal(err)
	}
	_, frame, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	event, err := Decode(frame)
	if err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	return event
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
