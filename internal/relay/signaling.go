// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package relay

import "time"

// Call identifies one call attempt. The id correlates the signals of the
// attempt across both parties.
type Call struct {
	ID         string
	CallerID   string
	CallerName string
}

// SignalFilter is an extension point over call-signal delivery. It runs
// before routing; returning false drops the signal. The relay itself
// enforces no state machine over call ids (no ordering checks, no timeout
// on an unanswered call), so any such policy belongs to whoever installs
// a filter.
type SignalFilter func(targetID string, signal *CallSignal) bool

// Signaling routes the four-variant call vocabulary through the router:
// incoming_call to the callee, everything else back to the caller.
type Signaling struct {
	router *Router
	filter SignalFilter
}

// NewSignaling creates a call-signal router. filter may be nil.
func NewSignaling(router *Router, filter SignalFilter) *Signaling {
	return &Signaling{router: router, filter: filter}
}

// IncomingCall rings the callee.
func (s *Signaling) IncomingCall(calleeID string, call Call) {
	s.send(calleeID, TypeIncomingCall, call)
}

// Accepted tells the caller the callee picked up.
func (s *Signaling) Accepted(call Call) {
	s.send(call.CallerID, TypeCallAccepted, call)
}

// Rejected tells the caller the callee declined.
func (s *Signaling) Rejected(call Call) {
	s.send(call.CallerID, TypeCallRejected, call)
}

// Ended tells the caller the call is over.
func (s *Signaling) Ended(call Call) {
	s.send(call.CallerID, TypeCallEnded, call)
}

func (s *Signaling) send(targetID string, kind EventType, call Call) {
	signal := &CallSignal{
		Type:       kind,
		CallID:     call.ID,
		CallerID:   call.CallerID,
		CallerName: call.CallerName,
		Timestamp:  time.Now().UTC(),
	}
	if s.filter != nil && !s.filter(targetID, signal) {
		return
	}
	s.router.Send(targetID, signal)
}
