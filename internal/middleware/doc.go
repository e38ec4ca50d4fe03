// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

// Package middleware provides the HTTP middleware shared by the relay's
// handlers: request-id propagation, structured request logging, and
// Prometheus instrumentation.
//
// Middleware here uses the http.HandlerFunc form; the api package adapts it
// to chi's func(http.Handler) http.Handler where needed.
package middleware
