// Package testutil provides test helpers: a recording town listener, a fake
// video-session provider, and a websocket test client.
package testutil

import (
	"sync"

	"github.com/cory-johannsen/town/internal/game/world"
)

// EventKind names a listener notification.
type EventKind string

// Notification kinds recorded by RecordingListener.
const (
	PlayerJoined       EventKind = "player_joined"
	PlayerMoved        EventKind = "player_moved"
	PlayerDisconnected EventKind = "player_disconnected"
	AreaUpdated        EventKind = "area_updated"
	AreaDestroyed      EventKind = "area_destroyed"
	TownDestroyed      EventKind = "town_destroyed"
)

// Event is one recorded notification.
type Event struct {
	Kind   EventKind
	Player world.Player
	Area   world.ConversationArea
}

// RecordingListener records every notification it receives, in order.
// Set Err to make every delivery fail after recording.
type RecordingListener struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

// NewRecordingListener returns an empty RecordingListener.
func NewRecordingListener() *RecordingListener {
	return &RecordingListener{}
}

func (r *RecordingListener) record(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

func (r *RecordingListener) OnPlayerJoined(p world.Player) error {
	return r.record(Event{Kind: PlayerJoined, Player: p})
}

func (r *RecordingListener) OnPlayerMoved(p world.Player) error {
	return r.record(Event{Kind: PlayerMoved, Player: p})
}

func (r *RecordingListener) OnPlayerDisconnected(p world.Player) error {
	return r.record(Event{Kind: PlayerDisconnected, Player: p})
}

func (r *RecordingListener) OnConversationAreaUpdated(a world.ConversationArea) error {
	return r.record(Event{Kind: AreaUpdated, Area: a})
}

func (r *RecordingListener) OnConversationAreaDestroyed(a world.ConversationArea) error {
	return r.record(Event{Kind: AreaDestroyed, Area: a})
}

func (r *RecordingListener) OnTownDestroyed() error {
	return r.record(Event{Kind: TownDestroyed})
}

// Events returns a copy of everything recorded so far.
func (r *RecordingListener) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of everything recorded so far, in order.
func (r *RecordingListener) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// Reset discards the recorded events.
func (r *RecordingListener) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
