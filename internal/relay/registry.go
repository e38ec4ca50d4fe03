// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/metrics"
)

// Registry maps user identities to their single live connection. It is an
// explicit service object constructed once at server start; handlers run one
// goroutine per connection, so every mutation goes through the mutex.
//
// Invariant: at most one entry per identity. Registering over an existing
// entry replaces it; the displaced connection is not closed here, it merely
// becomes unreachable and cleans itself up when its own close fires.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register inserts or replaces the entry for userID.
func (r *Registry) Register(userID string, c *Conn) {
	r.mu.Lock()
	if prev, ok := r.conns[userID]; ok && prev != c {
		logging.Info().
			Str("user_id", userID).
			Uint64("replaced_conn_id", prev.ID()).
			Uint64("conn_id", c.ID()).
			Msg("replacing registered connection")
	}
	r.conns[userID] = c
	total := len(r.conns)
	r.mu.Unlock()

	metrics.ActiveConnections.Set(float64(total))
	logging.Info().Str("user_id", userID).Uint64("conn_id", c.ID()).Int("total_connections", total).Msg("connection registered")
}

// Lookup returns the live connection for userID, if any.
func (r *Registry) Lookup(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Remove deletes the entry for userID only if it still holds c. The guard
// keeps a stale close handler from evicting a newer connection registered
// after a reconnect race. Reports whether an entry was removed.
func (r *Registry) Remove(userID string, c *Conn) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if !ok || current != c {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	total := len(r.conns)
	r.mu.Unlock()

	metrics.ActiveConnections.Set(float64(total))
	logging.Info().Str("user_id", userID).Uint64("conn_id", c.ID()).Int("total_connections", total).Msg("connection removed")
	return true
}

// Identities returns the currently registered identities in sorted order,
// so broadcast delivery order is deterministic.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered connection and empties the registry.
// Used at teardown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	metrics.ActiveConnections.Set(0)
	logging.Info().Int("connections_closed", len(conns)).Msg("registry closed all connections")
}

// RunWithContext blocks until the context is canceled, then closes all
// connections. This is the suture.Service surface for the registry: the
// supervisor owns its lifetime and a restart begins with an empty map,
// which matches the no-persistence contract.
func (r *Registry) RunWithContext(ctx context.Context) error {
	<-ctx.Done()
	logging.Info().
		Str("component", "relay-registry").
		Int("connections_open", r.Len()).
		Msg("registry shutting down")
	r.CloseAll()
	return ctx.Err()
}
