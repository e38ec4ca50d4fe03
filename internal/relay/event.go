// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// EventType discriminates wire frames. The set is closed: Decode rejects
// anything outside it, and adding a variant means touching Decode's switch.
type EventType string

const (
	// Handshake frames.
	TypeAuth        EventType = "auth"
	TypeAuthSuccess EventType = "auth_success"
	TypeAuthError   EventType = "auth_error"

	// Notification events.
	TypeNewMessage     EventType = "new_message"
	TypePostLiked      EventType = "post_liked"
	TypePostCommented  EventType = "post_commented"
	TypeCommentReplied EventType = "comment_replied"

	// Call signals.
	TypeIncomingCall EventType = "incoming_call"
	TypeCallAccepted EventType = "call_accepted"
	TypeCallRejected EventType = "call_rejected"
	TypeCallEnded    EventType = "call_ended"
)

var (
	// ErrMalformedFrame indicates a frame that is not valid JSON or has no
	// usable type discriminant.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownEventType indicates a syntactically valid frame whose type
	// is outside the closed vocabulary. Receivers ignore such frames.
	ErrUnknownEventType = errors.New("unknown event type")
)

// Event is the closed union of wire frames. The stamp method seals the
// interface and lets Encode write the discriminant without reflection.
type Event interface {
	Kind() EventType
	stamp()
}

// Auth is the first frame a client must send on a new connection.
type Auth struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId"`
	Token  string    `json:"token"`
}

func (*Auth) Kind() EventType { return TypeAuth }
func (e *Auth) stamp()        { e.Type = TypeAuth }

// AuthSuccess acknowledges a completed handshake.
type AuthSuccess struct {
	Type EventType `json:"type"`
}

func (*AuthSuccess) Kind() EventType { return TypeAuthSuccess }
func (e *AuthSuccess) stamp()        { e.Type = TypeAuthSuccess }

// AuthError reports a failed handshake. The connection is closed after it
// is written.
type AuthError struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

func (*AuthError) Kind() EventType { return TypeAuthError }
func (e *AuthError) stamp()        { e.Type = TypeAuthError }

// NewMessage notifies the receiver of a chat message written by another user.
type NewMessage struct {
	Type           EventType `json:"type"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversationId"`
}

func (*NewMessage) Kind() EventType { return TypeNewMessage }
func (e *NewMessage) stamp()        { e.Type = TypeNewMessage }

// PostLiked notifies a post's author that someone liked it.
type PostLiked struct {
	Type       EventType `json:"type"`
	PostID     string    `json:"postId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

func (*PostLiked) Kind() EventType { return TypePostLiked }
func (e *PostLiked) stamp()        { e.Type = TypePostLiked }

// PostCommented notifies a post's author of a new comment.
type PostCommented struct {
	Type       EventType `json:"type"`
	PostID     string    `json:"postId"`
	CommentID  string    `json:"commentId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

func (*PostCommented) Kind() EventType { return TypePostCommented }
func (e *PostCommented) stamp()        { e.Type = TypePostCommented }

// CommentReplied notifies a comment's author of a reply. Same shape as
// PostCommented, distinct variant so receivers can route it differently.
type CommentReplied struct {
	Type       EventType `json:"type"`
	PostID     string    `json:"postId"`
	CommentID  string    `json:"commentId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

func (*CommentReplied) Kind() EventType { return TypeCommentReplied }
func (e *CommentReplied) stamp()        { e.Type = TypeCommentReplied }

// CallSignal carries one frame of the four-variant call setup/teardown
// vocabulary. The call id correlates the signals of one call attempt; the
// relay routes signals but enforces no ordering over them.
type CallSignal struct {
	Type       EventType `json:"type"`
	CallID     string    `json:"callId"`
	CallerID   string    `json:"callerId"`
	CallerName string    `json:"callerName"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *CallSignal) Kind() EventType { return e.Type }
func (*CallSignal) stamp()            {}

// IsCallSignal reports whether t is one of the call-signal variants.
func IsCallSignal(t EventType) bool {
	switch t {
	case TypeIncomingCall, TypeCallAccepted, TypeCallRejected, TypeCallEnded:
		return true
	default:
		return false
	}
}

// Encode serializes an event to its wire frame.
func Encode(e Event) ([]byte, error) {
	e.stamp()
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", e.Kind(), err)
	}
	return data, nil
}

// Decode parses a wire frame into its concrete event. Returns
// ErrMalformedFrame for unparseable input and ErrUnknownEventType for a
// type outside the closed set; callers treat both as "ignore this frame"
// unless the protocol phase says otherwise.
func Decode(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var e Event
	switch head.Type {
	case TypeAuth:
		e = &Auth{}
	case TypeAuthSuccess:
		e = &AuthSuccess{}
	case TypeAuthError:
		e = &AuthError{}
	case TypeNewMessage:
		e = &NewMessage{}
	case TypePostLiked:
		e = &PostLiked{}
	case TypePostCommented:
		e = &PostCommented{}
	case TypeCommentReplied:
		e = &CommentReplied{}
	case TypeIncomingCall, TypeCallAccepted, TypeCallRejected, TypeCallEnded:
		e = &CallSignal{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, head.Type)
	}

	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return e, nil
}
