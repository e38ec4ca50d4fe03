// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package relay

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/investlink/relay/internal/auth"
	"github.com/investlink/relay/internal/config"
	"github.com/investlink/relay/internal/logging"
)

// ErrConnClosed is returned by enqueue after the connection shut down.
var ErrConnClosed = errors.New("connection closed")

// ErrSendBufferFull is returned by enqueue when the outbound buffer cannot
// accept another frame. The router treats it as a failed delivery and evicts
// the connection.
var ErrSendBufferFull = errors.New("send buffer full")

// connIDCounter assigns monotonically increasing ids for log correlation.
var connIDCounter atomic.Uint64

// Conn wraps a WebSocket connection with an outbound frame buffer and the
// identity bound by the handshake. A Conn is owned by at most one registry
// entry; once its socket closes it is never reused.
type Conn struct {
	id  uint64
	ws  *websocket.Conn
	cfg config.RelayConfig

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu            sync.RWMutex
	identity      auth.Identity
	authenticated bool
}

// NewConn wraps an upgraded WebSocket connection. The caller must start the
// write pump (the handshake does this).
func NewConn(ws *websocket.Conn, cfg config.RelayConfig) *Conn {
	return &Conn{
		id:   connIDCounter.Add(1),
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

// ID returns the connection's process-unique id, used in logs.
func (c *Conn) ID() uint64 { return c.id }

// Identity returns the identity bound by the handshake; the zero Identity
// before authentication completes.
func (c *Conn) Identity() auth.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Authenticated reports whether the handshake completed on this connection.
func (c *Conn) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// bind records the verified identity. Called exactly once, by the handshake.
func (c *Conn) bind(identity auth.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
	c.authenticated = true
}

// enqueue hands a frame to the write pump without blocking. A closed
// connection or a full buffer is a failed delivery; the caller decides
// whether that evicts the connection.
func (c *Conn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Close tears the connection down. Safe to call from any goroutine and more
// than once; delivery attempts after the first call fail with ErrConnClosed.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// closeWith writes a close frame with the given code before tearing down.
func (c *Conn) closeWith(code int, reason string) {
	if c.ws != nil {
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	}
	c.Close()
}

// writePump drains the send buffer onto the socket and keeps the peer alive
// with pings. Runs in its own goroutine for the life of the connection; any
// write error ends the connection.
func (c *Conn) writePump() {
	pingPeriod := c.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Uint64("conn_id", c.id).Msg("write failed, closing connection")
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// sendEvent encodes and enqueues an event on this connection.
func (c *Conn) sendEvent(e Event) error {
	frame, err := Encode(e)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}
