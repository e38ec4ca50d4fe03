// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

// Package client implements the consumer side of the relay channel: the
// notification controller that classifies incoming frames and applies the
// user's notification policy, and the supervisor that keeps the connection
// alive across unclean disconnects.
//
// Platform side effects (sound, vibration, native notifications) live behind
// interfaces; the frontends plug in their own implementations. Every side
// effect is fire-and-forget: a failing speaker never blocks a state update.
package client

import (
	"sync"
	"time"

	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/relay"
)

// DefaultBufferCapacity bounds the recent-notifications list.
const DefaultBufferCapacity = 10

// popupDismiss is how long a native notification stays up.
const popupDismiss = 5 * time.Second

// vibrationPulse is the duration of the vibration side effect.
const vibrationPulse = 200 * time.Millisecond

// Settings is the user's notification policy.
type Settings struct {
	Enabled              bool `json:"enabled"`
	Sound                bool `json:"sound"`
	BrowserNotifications bool `json:"browserNotifications"`
	Vibration            bool `json:"vibration"`
}

// DefaultSettings returns the policy applied before the user changes
// anything: everything but vibration on.
func DefaultSettings() Settings {
	return Settings{Enabled: true, Sound: true, BrowserNotifications: true, Vibration: false}
}

// SettingsPatch is a partial settings update; nil fields keep their value.
type SettingsPatch struct {
	Enabled              *bool
	Sound                *bool
	BrowserNotifications *bool
	Vibration            *bool
}

// Sound distinguishes the two playback effects.
type Sound string

const (
	// SoundNotification is the short cue for an ordinary notification.
	SoundNotification Sound = "notification"

	// SoundRingtone announces an incoming call. It plays regardless of the
	// Sound setting; a call must be audible even with notification sounds off.
	SoundRingtone Sound = "ringtone"
)

// SoundPlayer plays a notification sound. Implementations should not block.
type SoundPlayer interface {
	Play(sound Sound) error
}

// Vibrator triggers a vibration pulse on devices that support it.
type Vibrator interface {
	Vibrate(duration time.Duration) error
}

// NavKind says where a notification click should navigate.
type NavKind string

const (
	NavConversation NavKind = "conversation"
	NavPost         NavKind = "post"
)

// Popup is a native OS-level notification request.
type Popup struct {
	Title    string
	Body     string
	Dismiss  time.Duration
	Nav      NavKind
	TargetID string
}

// Notifier shows native notifications. RequestPermission is asked at most
// once per controller; a denied or unavailable permission quietly disables
// popups without affecting anything else.
type Notifier interface {
	RequestPermission() (bool, error)
	Show(popup Popup) error
}

// Notification is one entry in the recent-notifications buffer.
type Notification struct {
	Type           relay.EventType `json:"type"`
	SenderID       string          `json:"senderId"`
	SenderName     string          `json:"senderName"`
	Content        string          `json:"content"`
	MessageID      string          `json:"messageId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	PostID         string          `json:"postId,omitempty"`
	CommentID      string          `json:"commentId,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	ReceivedAt     time.Time       `json:"receivedAt"`
}

// Options configures a Controller. Zero-value side-effect fields disable the
// corresponding effect.
type Options struct {
	Settings *Settings
	Capacity int
	Sound    SoundPlayer
	Vibrator Vibrator
	Notifier Notifier
}

// Controller consumes relay frames and maintains the state the UI renders:
// the bounded recent-notifications buffer, the unread counter, and the
// pending incoming-call slot.
type Controller struct {
	mu sync.Mutex

	settings      Settings
	capacity      int
	notifications []Notification
	unread        int
	incomingCall  *relay.CallSignal

	sound    SoundPlayer
	vibrator Vibrator
	notifier Notifier

	permissionAsked   bool
	permissionGranted bool
}

// NewController builds a controller. If the feature starts enabled and a
// notifier is present, OS permission is requested immediately.
func NewController(opts Options) *Controller {
	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}

	c := &Controller{
		settings: settings,
		capacity: capacity,
		sound:    opts.Sound,
		vibrator: opts.Vibrator,
		notifier: opts.Notifier,
	}
	if settings.Enabled {
		c.RequestPermission()
	}
	return c
}

// HandleFrame decodes and processes one raw frame from the socket.
// Undecodable or unknown frames are dropped without side effects.
func (c *Controller) HandleFrame(frame []byte) {
	event, err := relay.Decode(frame)
	if err != nil {
		logging.Debug().Err(err).Msg("ignoring unreadable frame")
		return
	}
	c.HandleEvent(event)
}

// HandleEvent processes one decoded event. When the feature is disabled the
// event is ignored entirely: no buffering, no counters, no side effects.
func (c *Controller) HandleEvent(event relay.Event) {
	c.mu.Lock()
	if !c.settings.Enabled {
		c.mu.Unlock()
		return
	}

	switch e := event.(type) {
	case *relay.NewMessage:
		c.recordLocked(Notification{
			Type:           relay.TypeNewMessage,
			SenderID:       e.SenderID,
			SenderName:     e.SenderName,
			Content:        e.Content,
			MessageID:      e.MessageID,
			ConversationID: e.ConversationID,
			Timestamp:      e.Timestamp,
			ReceivedAt:     time.Now(),
		}, Popup{
			Title:    "New message from " + e.SenderName,
			Body:     e.Content,
			Dismiss:  popupDismiss,
			Nav:      NavConversation,
			TargetID: e.ConversationID,
		})

	case *relay.PostLiked:
		c.recordLocked(Notification{
			Type:       relay.TypePostLiked,
			SenderID:   e.SenderID,
			SenderName: e.SenderName,
			Content:    e.Content,
			PostID:     e.PostID,
			Timestamp:  e.Timestamp,
			ReceivedAt: time.Now(),
		}, engagementPopup(e.SenderName, e.Content, e.PostID))

	case *relay.PostCommented:
		c.recordLocked(Notification{
			Type:       relay.TypePostCommented,
			SenderID:   e.SenderID,
			SenderName: e.SenderName,
			Content:    e.Content,
			PostID:     e.PostID,
			CommentID:  e.CommentID,
			Timestamp:  e.Timestamp,
			ReceivedAt: time.Now(),
		}, engagementPopup(e.SenderName, e.Content, e.PostID))

	case *relay.CommentReplied:
		c.recordLocked(Notification{
			Type:       relay.TypeCommentReplied,
			SenderID:   e.SenderID,
			SenderName: e.SenderName,
			Content:    e.Content,
			PostID:     e.PostID,
			CommentID:  e.CommentID,
			Timestamp:  e.Timestamp,
			ReceivedAt: time.Now(),
		}, engagementPopup(e.SenderName, e.Content, e.PostID))

	case *relay.CallSignal:
		ringtone := c.handleCallSignalLocked(e)
		c.mu.Unlock()
		if ringtone {
			// Ringtone semantics: audible even with notification sounds off.
			c.playSound(SoundRingtone)
		}

	default:
		// Handshake frames belong to the supervisor; anything else is noise.
		c.mu.Unlock()
	}
}

// engagementPopup builds the popup for likes, comments and replies. Its
// title is deliberately distinct from the message popup's.
func engagementPopup(senderName, content, postID string) Popup {
	return Popup{
		Title:    "New activity from " + senderName,
		Body:     content,
		Dismiss:  popupDismiss,
		Nav:      NavPost,
		TargetID: postID,
	}
}

// recordLocked updates buffer and counter, then releases the lock and fires
// the side effects. Called with c.mu held; returns with it released.
func (c *Controller) recordLocked(n Notification, popup Popup) {
	c.notifications = append([]Notification{n}, c.notifications...)
	if len(c.notifications) > c.capacity {
		c.notifications = c.notifications[:c.capacity]
	}
	c.unread++

	settings := c.settings
	granted := c.permissionGranted
	c.mu.Unlock()

	if settings.Sound {
		c.playSound(SoundNotification)
	}
	if settings.Vibration && c.vibrator != nil {
		if err := c.vibrator.Vibrate(vibrationPulse); err != nil {
			logging.Debug().Err(err).Msg("vibration failed")
		}
	}
	if settings.BrowserNotifications && granted && c.notifier != nil {
		if err := c.notifier.Show(popup); err != nil {
			logging.Debug().Err(err).Msg("native notification failed")
		}
	}
}

// handleCallSignalLocked maintains the incoming-call slot. Call signals do
// not touch the notification buffer or the unread counter. Called with c.mu
// held; leaves it held.
func (c *Controller) handleCallSignalLocked(signal *relay.CallSignal) (ringtone bool) {
	switch signal.Kind() {
	case relay.TypeIncomingCall:
		copied := *signal
		c.incomingCall = &copied
		return true

	case relay.TypeCallAccepted, relay.TypeCallRejected, relay.TypeCallEnded:
		if c.incomingCall != nil && c.incomingCall.CallID == signal.CallID {
			c.incomingCall = nil
		}
	}
	return false
}

// playSound plays a sound and swallows any failure.
func (c *Controller) playSound(sound Sound) {
	if c.sound == nil {
		return
	}
	if err := c.sound.Play(sound); err != nil {
		logging.Debug().Err(err).Str("sound", string(sound)).Msg("sound playback failed")
	}
}

// Settings returns the current notification policy.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings applies a partial update and returns the resulting
// settings. Enabling the feature triggers the one-time permission request.
func (c *Controller) UpdateSettings(patch SettingsPatch) Settings {
	c.mu.Lock()
	wasEnabled := c.settings.Enabled
	if patch.Enabled != nil {
		c.settings.Enabled = *patch.Enabled
	}
	if patch.Sound != nil {
		c.settings.Sound = *patch.Sound
	}
	if patch.BrowserNotifications != nil {
		c.settings.BrowserNotifications = *patch.BrowserNotifications
	}
	if patch.Vibration != nil {
		c.settings.Vibration = *patch.Vibration
	}
	settings := c.settings
	c.mu.Unlock()

	if !wasEnabled && settings.Enabled {
		c.RequestPermission()
	}
	return settings
}

// RequestPermission asks the platform for native-notification permission,
// at most once per controller. Denial or an absent notifier leaves popups
// inert without erroring.
func (c *Controller) RequestPermission() {
	c.mu.Lock()
	if c.permissionAsked || c.notifier == nil {
		c.mu.Unlock()
		return
	}
	c.permissionAsked = true
	notifier := c.notifier
	c.mu.Unlock()

	granted, err := notifier.RequestPermission()
	if err != nil {
		logging.Debug().Err(err).Msg("notification permission request failed")
		granted = false
	}

	c.mu.Lock()
	c.permissionGranted = granted
	c.mu.Unlock()
}

// UnreadCount returns the number of notifications received since the last
// clear.
func (c *Controller) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Notifications returns the recent notifications, newest first.
func (c *Controller) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}

// IncomingCall returns the pending incoming call, or nil.
func (c *Controller) IncomingCall() *relay.CallSignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incomingCall == nil {
		return nil
	}
	copied := *c.incomingCall
	return &copied
}

// ClearNotifications is invoked by the UI when the user opens the matching
// view. With a conversation id it removes only that conversation's entries;
// without one it clears the whole buffer. The unread counter resets to zero
// either way.
func (c *Controller) ClearNotifications(conversationID ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(conversationID) > 0 && conversationID[0] != "" {
		id := conversationID[0]
		kept := c.notifications[:0]
		for _, n := range c.notifications {
			if n.ConversationID != id {
				kept = append(kept, n)
			}
		}
		c.notifications = kept
	} else {
		c.notifications = nil
	}
	c.unread = 0
}
