// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

// Package api provides the relay's HTTP surface on a chi router:
//
//   - GET  /ws                   WebSocket upgrade into the auth handshake
//   - POST /internal/emit        service-token-guarded event ingress
//   - GET  /internal/connections registered identities, for operators
//   - GET  /api/v1/health        liveness plus connection count
//   - GET  /metrics              Prometheus exposition
//
// The /internal routes exist for out-of-process emitters: the REST backend
// (messages, likes, comments) and the call service push events here instead
// of linking the relay in-process.
package api
