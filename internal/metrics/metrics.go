// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

// Package metrics exposes Prometheus instrumentation for the relay:
// connection lifecycle, handshake outcomes, event delivery, and the HTTP
// surface. All collectors are registered via promauto at package init.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks currently registered authenticated connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Number of authenticated WebSocket connections currently registered",
		},
	)

	// HandshakeTotal counts handshake attempts by outcome.
	HandshakeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_handshake_total",
			Help: "Total number of authentication handshakes by outcome",
		},
		[]string{"outcome"}, // "success", "invalid_token", "identity_mismatch", "malformed", "timeout"
	)

	// EventsDelivered counts events successfully handed to a live connection.
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_delivered_total",
			Help: "Total number of events enqueued to a live connection",
		},
		[]string{"type"},
	)

	// EventsDropped counts events dropped because the receiver was absent or
	// its connection could not accept the write. Dropping is the documented
	// best-effort policy, not an error path.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Total number of events dropped (receiver offline or send failed)",
		},
		[]string{"type", "reason"}, // reason: "offline", "send_failed"
	)

	// BroadcastsTotal counts broadcast operations.
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Total number of broadcast operations",
		},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	// HTTPRequestDuration observes HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "path"},
	)
)

// Handshake outcome labels.
const (
	HandshakeSuccess          = "success"
	HandshakeInvalidToken     = "invalid_token"
	HandshakeIdentityMismatch = "identity_mismatch"
	HandshakeMalformed        = "malformed"
	HandshakeTimeout          = "timeout"
)

// Drop reason labels.
const (
	DropOffline    = "offline"
	DropSendFailed = "send_failed"
)

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
