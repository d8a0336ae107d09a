// Package broadcast fans town state changes out to registered listeners.
package broadcast

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cory-johannsen/town/internal/game/world"
)

// Listener observes the state changes of one town.
// Implementations receive value snapshots and must not retain pointers into
// town state. A returned error is logged by the Bus and does not stop delivery
// to other listeners. Listeners are compared by identity, so use pointer
// receivers.
//
// Callbacks run synchronously while the publishing town holds its mutation
// lock. A callback may read the town's snapshot accessors but must not call
// its mutating methods or AddListener/RemoveListener, which would deadlock;
// hand such work to another goroutine.
type Listener interface {
	OnPlayerJoined(p world.Player) error
	OnPlayerMoved(p world.Player) error
	OnPlayerDisconnected(p world.Player) error
	OnConversationAreaUpdated(a world.ConversationArea) error
	OnConversationAreaDestroyed(a world.ConversationArea) error
	OnTownDestroyed() error
}

// NopListener implements Listener with methods that do nothing.
// Embed it to handle only the notifications you care about.
type NopListener struct{}

func (NopListener) OnPlayerJoined(world.Player) error { return nil }

func (NopListener) OnPlayerMoved(world.Player) error { return nil }

func (NopListener) OnPlayerDisconnected(world.Player) error { return nil }

func (NopListener) OnConversationAreaUpdated(world.ConversationArea) error { return nil }

func (NopListener) OnConversationAreaDestroyed(world.ConversationArea) error { return nil }

func (NopListener) OnTownDestroyed() error { return nil }

// Bus holds the listener set of a town and delivers notifications to it.
// Subscribe and Unsubscribe are safe for concurrent use; delivery order is
// registration order.
type Bus struct {
	mu        sync.Mutex
	listeners []Listener
	failures  atomic.Int64
	logger    *zap.Logger
}

// NewBus creates a Bus with no listeners.
//
// Precondition: logger must be non-nil.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe adds l to the listener set. Adding a present listener is a no-op.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cur := range b.listeners {
		if cur == l {
			return
		}
	}
	b.listeners = append(b.listeners, l)
}

// Unsubscribe removes l from the listener set. Removing an absent listener is a no-op.
func (b *Bus) Unsubscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cur := range b.listeners {
		if cur == l {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribed listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Failures returns how many deliveries have failed since the Bus was created.
func (b *Bus) Failures() int64 {
	return b.failures.Load()
}

// PlayerJoined notifies every listener that p was admitted.
func (b *Bus) PlayerJoined(p world.Player) {
	b.publish("player_joined", func(l Listener) error { return l.OnPlayerJoined(p) })
}

// PlayerMoved notifies every listener of p's new location.
func (b *Bus) PlayerMoved(p world.Player) {
	b.publish("player_moved", func(l Listener) error { return l.OnPlayerMoved(p) })
}

// PlayerDisconnected notifies every listener that p's session ended.
func (b *Bus) PlayerDisconnected(p world.Player) {
	b.publish("player_disconnected", func(l Listener) error { return l.OnPlayerDisconnected(p) })
}

// AreaUpdated notifies every listener of a's current occupant set.
func (b *Bus) AreaUpdated(a world.ConversationArea) {
	b.publish("conversation_area_updated", func(l Listener) error {
		return l.OnConversationAreaUpdated(a.Clone())
	})
}

// AreaDestroyed notifies every listener that a was removed.
func (b *Bus) AreaDestroyed(a world.ConversationArea) {
	b.publish("conversation_area_destroyed", func(l Listener) error {
		return l.OnConversationAreaDestroyed(a.Clone())
	})
}

// TownDestroyed notifies every listener that the town is closing.
func (b *Bus) TownDestroyed() {
	b.publish("town_destroyed", func(l Listener) error { return l.OnTownDestroyed() })
}

// publish delivers to the listeners subscribed at the moment of the call.
// Listeners added or removed during delivery do not affect it.
func (b *Bus) publish(event string, deliver func(Listener) error) {
	b.mu.Lock()
	targets := append([]Listener(nil), b.listeners...)
	b.mu.Unlock()

	for i, l := range targets {
		if err := safeDeliver(l, deliver); err != nil {
			b.failures.Add(1)
			b.logger.Warn("listener delivery failed",
				zap.String("event", event),
				zap.Int("listener", i),
				zap.Error(err),
			)
		}
	}
}

func safeDeliver(l Listener, deliver func(Listener) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return deliver(l)
}
