// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

// Package relay implements the server side of the real-time channel: the
// identity-to-connection registry, the authentication handshake, the
// best-effort event router, and the call-signaling vocabulary.
//
// Delivery is at-most-once. An event for an offline receiver, or one whose
// connection fails mid-write, is dropped without error; emitters persist
// their own data before calling the router and never depend on delivery.
//
// Concurrency: HTTP handlers run one goroutine per connection, so the
// registry map is mutex-protected. No invariant spans more than one registry
// operation.
package relay
