// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package client

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/relay"
)

// DefaultReconnectDelay is the fixed pause before a reconnect attempt.
// Deliberately constant rather than backed off: the relay tolerates the
// herd, and a predictable delay keeps the UX consistent.
const DefaultReconnectDelay = 5 * time.Second

// defaultHandshakeTimeout bounds the auth exchange after dialing.
const defaultHandshakeTimeout = 10 * time.Second

// State is the supervisor's connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

var (
	// ErrDisabled is returned by Connect when notifications are turned off.
	ErrDisabled = errors.New("notifications disabled")

	// ErrAuthRejected is returned when the relay refuses the credentials.
	ErrAuthRejected = errors.New("authentication rejected")
)

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	// URL is the relay's WebSocket endpoint, e.g. wss://host/ws.
	URL string

	// UserID and Token are the credentials presented in the auth frame.
	UserID string
	Token  string

	// Controller receives every post-handshake frame.
	Controller *Controller

	// ReconnectDelay overrides DefaultReconnectDelay; zero keeps the default.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds the auth exchange; zero keeps the default.
	HandshakeTimeout time.Duration

	// Dialer overrides websocket.DefaultDialer, mainly for tests.
	Dialer *websocket.Dialer
}

// Supervisor owns the client's relay connection. It dials, authenticates,
// feeds frames to the controller, and schedules a fixed-delay reconnect
// whenever the connection drops for any reason other than a deliberate
// shutdown. Disabling notifications closes the connection cleanly and stops
// the cycle.
type Supervisor struct {
	url              string
	userID           string
	token            string
	controller       *Controller
	delay            time.Duration
	handshakeTimeout time.Duration
	dialer           *websocket.Dialer

	mu             sync.Mutex
	state          State
	ws             *websocket.Conn
	reconnectTimer *time.Timer
	gen            uint64
}

// NewSupervisor builds a supervisor in the disconnected state. Call Connect
// to start the cycle.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	handshakeTimeout := opts.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Supervisor{
		url:              opts.URL,
		userID:           opts.UserID,
		token:            opts.Token,
		controller:       opts.Controller,
		delay:            delay,
		handshakeTimeout: handshakeTimeout,
		dialer:           dialer,
		state:            StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the relay and runs the auth handshake. On success a reader
// goroutine starts feeding the controller. On failure the error is returned
// and, while notifications remain enabled, a reconnect is scheduled, so a
// transient failure heals without the caller doing anything.
func (s *Supervisor) Connect() error {
	if !s.controller.Settings().Enabled {
		return ErrDisabled
	}

	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.cancelReconnectLocked()
	s.state = StateConnecting
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	ws, err := s.dialAndAuthenticate()
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.scheduleReconnectLocked()
		}
		s.mu.Unlock()
		logging.Warn().Err(err).Str("url", s.url).Msg("relay connection failed")
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// Disabled or shut down while the dial was in flight.
		s.mu.Unlock()
		closeQuietly(ws)
		return ErrDisabled
	}
	s.ws = ws
	s.state = StateConnected
	s.mu.Unlock()

	logging.Info().Str("url", s.url).Msg("relay connected")
	go s.readLoop(ws, gen)
	return nil
}

// dialAndAuthenticate performs the dial plus the auth round trip: the first
// frame out is the auth request, the first frame in must be the verdict.
func (s *Supervisor) dialAndAuthenticate() (*websocket.Conn, error) {
	ws, _, err := s.dialer.Dial(s.url, nil)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.handshakeTimeout)
	frame, err := relay.Encode(&relay.Auth{UserID: s.userID, Token: s.token})
	if err != nil {
		closeQuietly(ws)
		return nil, err
	}
	if err := ws.SetWriteDeadline(deadline); err != nil {
		closeQuietly(ws)
		return nil, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		closeQuietly(ws)
		return nil, err
	}

	if err := ws.SetReadDeadline(deadline); err != nil {
		closeQuietly(ws)
		return nil, err
	}
	_, verdict, err := ws.ReadMessage()
	if err != nil {
		closeQuietly(ws)
		return nil, err
	}
	event, err := relay.Decode(verdict)
	if err != nil {
		closeQuietly(ws)
		return nil, err
	}
	switch e := event.(type) {
	case *relay.AuthSuccess:
	case *relay.AuthError:
		closeQuietly(ws)
		return nil, errors.Join(ErrAuthRejected, errors.New(e.Message))
	default:
		closeQuietly(ws)
		return nil, relay.ErrMalformedFrame
	}

	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		closeQuietly(ws)
		return nil, err
	}
	return ws, nil
}

// readLoop feeds frames to the controller until the connection dies, then
// decides whether to reconnect.
func (s *Supervisor) readLoop(ws *websocket.Conn, gen uint64) {
	var readErr error
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		s.controller.HandleFrame(frame)
	}

	cleanClose := websocket.IsCloseError(readErr, websocket.CloseNormalClosure)

	s.mu.Lock()
	if s.gen != gen {
		// A newer connection or a shutdown already superseded this one.
		s.mu.Unlock()
		return
	}
	s.ws = nil
	if cleanClose || !s.controller.Settings().Enabled {
		s.state = StateDisconnected
		s.mu.Unlock()
		logging.Info().Msg("relay disconnected")
		return
	}
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	logging.Warn().Err(readErr).Dur("delay", s.delay).Msg("relay connection lost, reconnecting")
}

// scheduleReconnectLocked arms the fixed-delay reconnect timer. Caller holds
// s.mu.
func (s *Supervisor) scheduleReconnectLocked() {
	s.state = StateReconnecting
	s.cancelReconnectLocked()
	s.reconnectTimer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if s.state != StateReconnecting {
			s.mu.Unlock()
			return
		}
		s.state = StateDisconnected
		s.mu.Unlock()
		_ = s.Connect()
	})
}

// cancelReconnectLocked stops any pending reconnect. Caller holds s.mu.
func (s *Supervisor) cancelReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

// UpdateSettings applies a settings patch and adjusts the connection to
// match: turning notifications off closes the connection with a normal
// closure and cancels any pending reconnect; turning them back on starts a
// fresh connection cycle.
func (s *Supervisor) UpdateSettings(patch SettingsPatch) Settings {
	wasEnabled := s.controller.Settings().Enabled
	settings := s.controller.UpdateSettings(patch)

	switch {
	case wasEnabled && !settings.Enabled:
		s.shutdown()
	case !wasEnabled && settings.Enabled:
		go func() { _ = s.Connect() }()
	}
	return settings
}

// Close tears the connection down cleanly and stops the reconnect cycle.
// The notification settings are left untouched.
func (s *Supervisor) Close() {
	s.shutdown()
}

func (s *Supervisor) shutdown() {
	s.mu.Lock()
	s.gen++
	s.cancelReconnectLocked()
	ws := s.ws
	s.ws = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if ws != nil {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = ws.Close()
	}
}

func closeQuietly(ws *websocket.Conn) {
	_ = ws.Close()
}
