// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package services

import (
	"context"

	"github.com/investlink/relay/internal/relay"
)

// RegistryService supervises the connection registry's lifetime. The
// registry itself has no run loop; the service holds it under the tree so
// that shutdown closes every live connection.
type RegistryService struct {
	registry *relay.Registry
}

// NewRegistryService wraps a registry for supervision.
func NewRegistryService(registry *relay.Registry) *RegistryService {
	return &RegistryService{registry: registry}
}

// Serve implements suture.Service. It blocks until cancellation, then
// closes all registered connections.
func (s *RegistryService) Serve(ctx context.Context) error {
	return s.registry.RunWithContext(ctx)
}

// String identifies the service in suture's logs.
func (s *RegistryService) String() string {
	return "connection-registry"
}
