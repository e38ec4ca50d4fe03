// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/investlink/relay/internal/auth"
	"github.com/investlink/relay/internal/config"
	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/relay"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// tokenMap is a fixed token-to-identity verifier.
type tokenMap map[string]auth.Identity

func (v tokenMap) Verify(token string) (auth.Identity, error) {
	identity, ok := v[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return identity, nil
}

type apiFixture struct {
	srv      *httptest.Server
	cfg      *config.Config
	registry *relay.Registry
}

func newAPIFixture(t *testing.T, mutate func(cfg *config.Config)) *apiFixture {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			ServiceToken:   "svc-secret",
			EmitRateLimit:  1000,
			EmitRateWindow: time.Minute,
		},
		Relay: config.RelayConfig{
			SendBuffer:       16,
			WriteTimeout:     time.Second,
			PongTimeout:      10 * time.Second,
			MaxMessageSize:   32 << 10,
			HandshakeTimeout: time.Second,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	verifier := tokenMap{
		"alice-token": {UserID: "alice", DisplayName: "Alice"},
		"bob-token":   {UserID: "bob", DisplayName: "Bob"},
	}

	registry := relay.NewRegistry()
	eventRouter := relay.NewRouter(registry)
	handshake := relay.NewHandshake(registry, verifier, cfg.Relay)
	handler := NewHandler(cfg, registry, eventRouter, handshake)

	srv := httptest.NewServer(NewRouter(cfg, handler).Setup())
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, cfg: cfg, registry: registry}
}

// connectClient dials /ws and completes the auth handshake.
func (f *apiFixture) connectClient(t *testing.T, userID, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	frame, err := relay.Encode(&relay.Auth{UserID: userID, Token: token})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, verdict, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("reading handshake verdict: %v", err)
	}
	event, err := relay.Decode(verdict)
	if err != nil {
		t.Fatalf("Decode verdict: %v", err)
	}
	if _, ok := event.(*relay.AuthSuccess); !ok {
		t.Fatalf("handshake verdict = %T, want AuthSuccess", event)
	}
	return ws
}

// readRelayEvent reads and decodes the next frame from a client socket.
func readRelayEvent(t *testing.T, ws *websocket.Conn) relay.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	event, err := relay.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return event
}

func emitBody(t *testing.T, receiverID string, broadcast bool, event relay.Event) *strings.Reader {
	t.Helper()
	frame, err := relay.Encode(event)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	body, err := json.Marshal(EmitRequest{
		ReceiverID: receiverID,
		Broadcast:  broadcast,
		Event:      frame,
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return strings.NewReader(string(body))
}

func (f *apiFixture) post(t *testing.T, path, token string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return envelope
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	envelope := decodeEnvelope(t, resp)
	if !envelope.Success {
		t.Error("expected a success envelope")
	}
}

func TestMetricsExposed(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "relay_") {
		t.Error("metrics exposition is missing the relay collectors")
	}
}

func TestEmitServiceTokenGuard(t *testing.T) {
	f := newAPIFixture(t, nil)
	event := &relay.NewMessage{
		MessageID: "m1", SenderID: "bob", SenderName: "Bob",
		Content: "hi", ConversationID: "conv-1", Timestamp: time.Now().UTC(),
	}

	t.Run("missing token", func(t *testing.T) {
		resp := f.post(t, "/internal/emit", "", emitBody(t, "alice", false, event))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		resp := f.post(t, "/internal/emit", "not-the-token", emitBody(t, "alice", false, event))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestInternalRoutesDisabledWithoutToken(t *testing.T) {
	f := newAPIFixture(t, func(cfg *config.Config) {
		cfg.Security.ServiceToken = ""
	})

	resp := f.post(t, "/internal/emit", "anything", strings.NewReader("{}"))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when internal routes are disabled", resp.StatusCode)
	}
}

func TestEmitValidation(t *testing.T) {
	f := newAPIFixture(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"missing event", `{"receiverId":"alice"}`},
		{"missing receiver", `{"event":{"type":"new_message"}}`},
		{"unknown event type", `{"receiverId":"alice","event":{"type":"mystery"}}`},
		{"handshake frame", `{"receiverId":"alice","event":{"type":"auth","userId":"x","token":"y"}}`},
		{"unknown request field", `{"receiverId":"alice","event":{"type":"new_message"},"extra":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.post(t, "/internal/emit", "svc-secret", strings.NewReader(tc.body))
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			envelope := decodeEnvelope(t, resp)
			if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
				t.Errorf("error envelope = %+v, want %s", envelope.Error, ErrCodeValidationFailed)
			}
		})
	}
}

func TestEmitDeliversToConnectedUser(t *testing.T) {
	f := newAPIFixture(t, nil)
	ws := f.connectClient(t, "alice", "alice-token")

	resp := f.post(t, "/internal/emit", "svc-secret", emitBody(t, "alice", false, &relay.NewMessage{
		MessageID: "m1", SenderID: "bob", SenderName: "Bob",
		Content: "hello alice", ConversationID: "conv-1", Timestamp: time.Now().UTC(),
	}))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	event := readRelayEvent(t, ws)
	msg, ok := event.(*relay.NewMessage)
	if !ok {
		t.Fatalf("delivered event = %T, want NewMessage", event)
	}
	if msg.Content != "hello alice" || msg.ConversationID != "conv-1" {
		t.Errorf("unexpected payload %+v", msg)
	}
}

func TestEmitOfflineReceiverStillAccepted(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.post(t, "/internal/emit", "svc-secret", emitBody(t, "nobody", false, &relay.PostLiked{
		PostID: "p1", SenderID: "bob", SenderName: "Bob",
		Content: "liked", Timestamp: time.Now().UTC(),
	}))
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202 for best-effort delivery", resp.StatusCode)
	}
}

func TestEmitBroadcast(t *testing.T) {
	f := newAPIFixture(t, nil)
	alice := f.connectClient(t, "alice", "alice-token")
	bob := f.connectClient(t, "bob", "bob-token")

	resp := f.post(t, "/internal/emit", "svc-secret", emitBody(t, "", true, &relay.PostCommented{
		PostID: "p1", CommentID: "c1", SenderID: "carol", SenderName: "Carol",
		Content: "announcement", Timestamp: time.Now().UTC(),
	}))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	for _, ws := range []*websocket.Conn{alice, bob} {
		event := readRelayEvent(t, ws)
		if _, ok := event.(*relay.PostCommented); !ok {
			t.Errorf("broadcast event = %T, want PostCommented", event)
		}
	}
}

func TestConnectionsListing(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.connectClient(t, "alice", "alice-token")

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/internal/connections", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer svc-secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var envelope struct {
		Success bool           `json:"success"`
		Data    ConnectionList `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if envelope.Data.Count != 1 || len(envelope.Data.Identities) != 1 || envelope.Data.Identities[0] != "alice" {
		t.Errorf("connections = %+v, want just alice", envelope.Data)
	}
}

func TestWebSocketOriginRejected(t *testing.T) {
	f := newAPIFixture(t, func(cfg *config.Config) {
		cfg.Security.AllowedOrigins = []string{"https://app.investlink.example"}
	})

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		ws.Close()
		t.Fatal("dial succeeded from a disallowed origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestWebSocketOriginAllowed(t *testing.T) {
	f := newAPIFixture(t, func(cfg *config.Config) {
		cfg.Security.AllowedOrigins = []string{"https://app.investlink.example"}
	})

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://app.investlink.example"}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial from an allowed origin failed: %v", err)
	}
	ws.Close()
}
