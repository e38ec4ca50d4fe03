// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package relay

import (
	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/metrics"
)

// Router delivers events to registered connections with at-most-once,
// best-effort semantics. A receiver that is offline, or whose connection
// cannot accept the frame, simply never sees the event; nothing is queued,
// retried, or surfaced to the emitter. Durable history is the REST
// collaborator's job, not the relay's.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Send delivers an event to receiverID's live connection, if any. Emitters
// call this after their own persistence step commits; the call never fails
// from their perspective.
func (rt *Router) Send(receiverID string, e Event) {
	frame, err := Encode(e)
	if err != nil {
		// Only reachable with an event that cannot marshal, which the closed
		// union rules out for all shipped variants.
		logging.Error().Err(err).Str("event_type", string(e.Kind())).Msg("failed to encode event")
		return
	}
	rt.deliver(receiverID, e.Kind(), frame)
}

// Broadcast delivers an event to every currently registered, authenticated
// connection. Reserved for system-wide events; per-user notifications go
// through Send.
func (rt *Router) Broadcast(e Event) {
	frame, err := Encode(e)
	if err != nil {
		logging.Error().Err(err).Str("event_type", string(e.Kind())).Msg("failed to encode broadcast event")
		return
	}

	metrics.BroadcastsTotal.Inc()
	for _, id := range rt.registry.Identities() {
		rt.deliver(id, e.Kind(), frame)
	}
}

// deliver pushes an encoded frame at the receiver's connection. A failed
// enqueue evicts the connection so the peer's reconnect starts clean.
func (rt *Router) deliver(receiverID string, kind EventType, frame []byte) {
	conn, ok := rt.registry.Lookup(receiverID)
	if !ok {
		metrics.EventsDropped.WithLabelValues(string(kind), metrics.DropOffline).Inc()
		logging.Debug().Str("user_id", receiverID).Str("event_type", string(kind)).Msg("receiver offline, dropping event")
		return
	}
	if !conn.Authenticated() {
		// Registry entries are created by the handshake after binding, so an
		// unauthenticated entry should not exist; treat it as offline.
		metrics.EventsDropped.WithLabelValues(string(kind), metrics.DropOffline).Inc()
		return
	}

	if err := conn.enqueue(frame); err != nil {
		rt.registry.Remove(receiverID, conn)
		conn.Close()
		metrics.EventsDropped.WithLabelValues(string(kind), metrics.DropSendFailed).Inc()
		logging.Warn().
			Err(err).
			Str("user_id", receiverID).
			Str("event_type", string(kind)).
			Msg("send failed, evicting connection")
		return
	}

	metrics.EventsDelivered.WithLabelValues(string(kind)).Inc()
}
