// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package client

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/investlink/relay/internal/logging"
	"github.com/investlink/relay/internal/relay"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type fakeSound struct {
	mu     sync.Mutex
	played []Sound
	err    error
}

func (f *fakeSound) Play(sound Sound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, sound)
	return f.err
}

func (f *fakeSound) sounds() []Sound {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sound, len(f.played))
	copy(out, f.played)
	return out
}

type fakeVibrator struct {
	mu     sync.Mutex
	pulses []time.Duration
}

func (f *fakeVibrator) Vibrate(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulses = append(f.pulses, d)
	return nil
}

func (f *fakeVibrator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pulses)
}

type fakeNotifier struct {
	mu       sync.Mutex
	granted  bool
	err      error
	requests int
	popups   []Popup
}

func (f *fakeNotifier) RequestPermission() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return f.granted, f.err
}

func (f *fakeNotifier) Show(popup Popup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.popups = append(f.popups, popup)
	return f.err
}

func (f *fakeNotifier) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeNotifier) shown() []Popup {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Popup, len(f.popups))
	copy(out, f.popups)
	return out
}

func messageEvent(sender, content, conversationID string) *relay.NewMessage {
	return &relay.NewMessage{
		MessageID:      "m-" + content,
		SenderID:       sender,
		SenderName:     sender,
		Content:        content,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	}
}

func incomingCall(callID string) *relay.CallSignal {
	return &relay.CallSignal{
		Type:       relay.TypeIncomingCall,
		CallID:     callID,
		CallerID:   "caller-1",
		CallerName: "Carol",
		Timestamp:  time.Now().UTC(),
	}
}

func callResponse(kind relay.EventType, callID string) *relay.CallSignal {
	return &relay.CallSignal{
		Type:      kind,
		CallID:    callID,
		CallerID:  "caller-1",
		Timestamp: time.Now().UTC(),
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if !s.Enabled || !s.Sound || !s.BrowserNotifications {
		t.Errorf("expected enabled/sound/browser on by default, got %+v", s)
	}
	if s.Vibration {
		t.Error("vibration should default to off")
	}
}

func TestNewMessageRecorded(t *testing.T) {
	sound := &fakeSound{}
	notifier := &fakeNotifier{granted: true}
	c := NewController(Options{Sound: sound, Notifier: notifier})

	c.HandleEvent(messageEvent("alice", "hello", "conv-1"))

	if got := c.UnreadCount(); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}
	notes := c.Notifications()
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}
	n := notes[0]
	if n.Type != relay.TypeNewMessage || n.SenderName != "alice" || n.ConversationID != "conv-1" {
		t.Errorf("unexpected notification %+v", n)
	}
	if got := sound.sounds(); len(got) != 1 || got[0] != SoundNotification {
		t.Errorf("sounds = %v, want one notification sound", got)
	}
	popups := notifier.shown()
	if len(popups) != 1 {
		t.Fatalf("got %d popups, want 1", len(popups))
	}
	if popups[0].Nav != NavConversation || popups[0].TargetID != "conv-1" {
		t.Errorf("popup should target the conversation, got %+v", popups[0])
	}
	if popups[0].Dismiss != popupDismiss {
		t.Errorf("popup dismiss = %v, want %v", popups[0].Dismiss, popupDismiss)
	}
}

func TestEngagementPopupTargetsPost(t *testing.T) {
	notifier := &fakeNotifier{granted: true}
	c := NewController(Options{Notifier: notifier})

	c.HandleEvent(&relay.PostLiked{
		PostID: "post-7", SenderID: "bob", SenderName: "bob",
		Content: "liked your post", Timestamp: time.Now().UTC(),
	})

	popups := notifier.shown()
	if len(popups) != 1 {
		t.Fatalf("got %d popups, want 1", len(popups))
	}
	if popups[0].Nav != NavPost || popups[0].TargetID != "post-7" {
		t.Errorf("popup should target the post, got %+v", popups[0])
	}
	if popups[0].Title == "New message from bob" {
		t.Error("engagement popup must not reuse the message title")
	}
}

func TestBufferBoundedNewestFirst(t *testing.T) {
	c := NewController(Options{Capacity: 3})

	for i := 0; i < 5; i++ {
		c.HandleEvent(messageEvent("alice", fmt.Sprintf("msg-%d", i), "conv-1"))
	}

	notes := c.Notifications()
	if len(notes) != 3 {
		t.Fatalf("got %d notifications, want 3", len(notes))
	}
	for i, want := range []string{"msg-4", "msg-3", "msg-2"} {
		if notes[i].Content != want {
			t.Errorf("notes[%d].Content = %q, want %q", i, notes[i].Content, want)
		}
	}
	if got := c.UnreadCount(); got != 5 {
		t.Errorf("unread = %d, want 5 despite eviction", got)
	}
}

func TestDisabledIgnoresEvents(t *testing.T) {
	sound := &fakeSound{}
	disabled := Settings{Enabled: false, Sound: true, BrowserNotifications: true}
	c := NewController(Options{Settings: &disabled, Sound: sound})

	c.HandleEvent(messageEvent("alice", "hello", "conv-1"))
	c.HandleEvent(incomingCall("call-1"))

	if c.UnreadCount() != 0 || len(c.Notifications()) != 0 {
		t.Error("disabled controller must not record notifications")
	}
	if c.IncomingCall() != nil {
		t.Error("disabled controller must not track calls")
	}
	if len(sound.sounds()) != 0 {
		t.Error("disabled controller must not play sounds")
	}
}

func TestUnreadableFramesDropped(t *testing.T) {
	c := NewController(Options{})

	c.HandleFrame([]byte("not json"))
	c.HandleFrame([]byte(`{"type":"mystery"}`))
	// Handshake frames are the supervisor's business.
	frame, err := relay.Encode(&relay.AuthSuccess{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c.HandleFrame(frame)

	if c.UnreadCount() != 0 || len(c.Notifications()) != 0 {
		t.Error("noise frames must not produce notifications")
	}
}

func TestSoundToggleOff(t *testing.T) {
	sound := &fakeSound{}
	settings := Settings{Enabled: true, Sound: false}
	c := NewController(Options{Settings: &settings, Sound: sound})

	c.HandleEvent(messageEvent("alice", "hello", "conv-1"))

	if len(sound.sounds()) != 0 {
		t.Error("sound must stay silent when toggled off")
	}
	if c.UnreadCount() != 1 {
		t.Error("recording must not depend on the sound toggle")
	}
}

func TestRingtoneBypassesSoundToggle(t *testing.T) {
	sound := &fakeSound{}
	settings := Settings{Enabled: true, Sound: false}
	c := NewController(Options{Settings: &settings, Sound: sound})

	c.HandleEvent(incomingCall("call-1"))

	if got := sound.sounds(); len(got) != 1 || got[0] != SoundRingtone {
		t.Errorf("sounds = %v, want the ringtone even with sound off", got)
	}
	if c.UnreadCount() != 0 || len(c.Notifications()) != 0 {
		t.Error("call signals must not enter the notification buffer")
	}
	call := c.IncomingCall()
	if call == nil || call.CallID != "call-1" {
		t.Fatalf("incoming call slot = %+v, want call-1", call)
	}
}

func TestCallSlotLifecycle(t *testing.T) {
	c := NewController(Options{})

	c.HandleEvent(incomingCall("call-1"))
	if c.IncomingCall() == nil {
		t.Fatal("expected a pending call")
	}

	// A response for some other call leaves the slot alone.
	c.HandleEvent(callResponse(relay.TypeCallEnded, "call-other"))
	if c.IncomingCall() == nil {
		t.Fatal("unrelated call signal must not clear the slot")
	}

	c.HandleEvent(callResponse(relay.TypeCallRejected, "call-1"))
	if c.IncomingCall() != nil {
		t.Fatal("matching response must clear the slot")
	}

	// A newer incoming call replaces whatever was there.
	c.HandleEvent(incomingCall("call-2"))
	c.HandleEvent(incomingCall("call-3"))
	if call := c.IncomingCall(); call == nil || call.CallID != "call-3" {
		t.Errorf("slot = %+v, want call-3", call)
	}
}

func TestVibrationToggle(t *testing.T) {
	vib := &fakeVibrator{}
	on := Settings{Enabled: true, Vibration: true}
	c := NewController(Options{Settings: &on, Vibrator: vib})

	c.HandleEvent(messageEvent("alice", "hello", "conv-1"))
	if vib.count() != 1 {
		t.Errorf("vibration count = %d, want 1", vib.count())
	}

	off := false
	c.UpdateSettings(SettingsPatch{Vibration: &off})
	c.HandleEvent(messageEvent("alice", "again", "conv-1"))
	if vib.count() != 1 {
		t.Error("vibration must stop once toggled off")
	}
}

func TestPermissionRequestedOnce(t *testing.T) {
	t.Run("on construction when enabled", func(t *testing.T) {
		notifier := &fakeNotifier{granted: true}
		c := NewController(Options{Notifier: notifier})
		if notifier.requestCount() != 1 {
			t.Fatalf("requests = %d, want 1", notifier.requestCount())
		}

		off, on := false, true
		c.UpdateSettings(SettingsPatch{Enabled: &off})
		c.UpdateSettings(SettingsPatch{Enabled: &on})
		if notifier.requestCount() != 1 {
			t.Errorf("requests = %d, re-enabling must not ask again", notifier.requestCount())
		}
	})

	t.Run("deferred until first enable", func(t *testing.T) {
		notifier := &fakeNotifier{granted: true}
		disabled := Settings{Enabled: false}
		c := NewController(Options{Settings: &disabled, Notifier: notifier})
		if notifier.requestCount() != 0 {
			t.Fatal("disabled controller must not ask for permission")
		}

		on := true
		c.UpdateSettings(SettingsPatch{Enabled: &on})
		if notifier.requestCount() != 1 {
			t.Errorf("requests = %d, want 1 after enabling", notifier.requestCount())
		}
	})
}

func TestPermissionDeniedSuppressesPopups(t *testing.T) {
	notifier := &fakeNotifier{granted: false}
	c := NewController(Options{Notifier: notifier})

	c.HandleEvent(messageEvent("alice", "hello", "conv-1"))

	if len(notifier.shown()) != 0 {
		t.Error("no popups without permission")
	}
	if c.UnreadCount() != 1 {
		t.Error("denied permission must not affect recording")
	}
}

func TestSideEffectFailuresAreSwallowed(t *testing.T) {
	sound := &fakeSound{err: errors.New("no audio device")}
	notifier := &fakeNotifier{granted: true, err: errors.New("display gone")}
	c := NewController(Options{Sound: sound, Notifier: notifier})

	c.HandleEvent(messageEvent("alice", "hello", "conv-1"))

	if c.UnreadCount() != 1 || len(c.Notifications()) != 1 {
		t.Error("failing side effects must not block state updates")
	}
}

func TestClearNotifications(t *testing.T) {
	t.Run("everything", func(t *testing.T) {
		c := NewController(Options{})
		c.HandleEvent(messageEvent("alice", "one", "conv-1"))
		c.HandleEvent(messageEvent("bob", "two", "conv-2"))

		c.ClearNotifications()

		if len(c.Notifications()) != 0 || c.UnreadCount() != 0 {
			t.Error("clear without a conversation must empty everything")
		}
	})

	t.Run("single conversation", func(t *testing.T) {
		c := NewController(Options{})
		c.HandleEvent(messageEvent("alice", "one", "conv-1"))
		c.HandleEvent(messageEvent("bob", "two", "conv-2"))
		c.HandleEvent(&relay.PostLiked{
			PostID: "post-1", SenderID: "carol", SenderName: "carol",
			Content: "liked", Timestamp: time.Now().UTC(),
		})

		c.ClearNotifications("conv-1")

		notes := c.Notifications()
		if len(notes) != 2 {
			t.Fatalf("got %d notifications, want 2", len(notes))
		}
		for _, n := range notes {
			if n.ConversationID == "conv-1" {
				t.Errorf("conv-1 entry survived the clear: %+v", n)
			}
		}
		if c.UnreadCount() != 0 {
			t.Error("scoped clear must still reset the unread counter")
		}
	})
}
