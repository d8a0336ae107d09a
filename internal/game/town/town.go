// Package town composes the session registry, the conversation area engine,
// and the broadcast bus into one authority per town, and keeps the directory
// of live towns.
package town

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/town/internal/game/area"
	"github.com/cory-johannsen/town/internal/game/broadcast"
	"github.com/cory-johannsen/town/internal/game/session"
	"github.com/cory-johannsen/town/internal/game/world"
	"github.com/cory-johannsen/town/internal/video"
)

// Town is the single authority over one town's players, areas, and listeners.
// Every mutation holds mu for its whole read-modify-write sequence, including
// listener delivery, so listeners observe a linearized event stream.
//
// The read accessors (Players, ConversationAreas, FriendlyName,
// IsPubliclyListed, Closed, LookupSession, Occupancy, Metrics) never take mu
// and may be called from inside a listener callback. Mutations and
// AddListener/RemoveListener take mu and must not be called synchronously
// from a callback.
type Town struct {
	id           string
	capacity     int
	passwordHash []byte
	provider     video.Provider
	logger       *zap.Logger

	mu       sync.Mutex
	closed   atomic.Bool
	view     atomic.Pointer[view]
	registry *session.Registry
	areas    *area.Engine
	bus      *broadcast.Bus
	metrics  Metrics

	metaMu       sync.RWMutex
	friendlyName string
	public       bool
}

// view is the copy-on-write state read by the accessors. It is replaced
// under mu after each mutation and before that mutation's events go out.
type view struct {
	players []world.Player
	areas   []world.ConversationArea
}

// newTown creates an open town with no players or areas.
//
// Precondition: id non-empty; capacity >= 1; provider and logger non-nil.
func newTown(id, friendlyName string, public bool, passwordHash []byte, capacity int, provider video.Provider, logger *zap.Logger) *Town {
	logger = logger.With(zap.String("town_id", id))
	t := &Town{
		id:           id,
		capacity:     capacity,
		provider:     provider,
		logger:       logger,
		friendlyName: friendlyName,
		public:       public,
		passwordHash: passwordHash,
		registry:     session.NewRegistry(),
		areas:        area.NewEngine(),
		bus:          broadcast.NewBus(logger),
	}
	t.view.Store(&view{})
	return t
}

// ID returns the town's identifier.
func (t *Town) ID() string { return t.id }

// Capacity returns the maximum number of players.
func (t *Town) Capacity() int { return t.capacity }

// FriendlyName returns the display name.
func (t *Town) FriendlyName() string {
	t.metaMu.RLock()
	defer t.metaMu.RUnlock()
	return t.friendlyName
}

// IsPubliclyListed reports whether the town appears in public listings.
func (t *Town) IsPubliclyListed() bool {
	t.metaMu.RLock()
	defer t.metaMu.RUnlock()
	return t.public
}

// Occupancy returns the number of connected players.
func (t *Town) Occupancy() int {
	return t.registry.Count()
}

// Closed reports whether DisconnectAllPlayers has run.
func (t *Town) Closed() bool {
	return t.closed.Load()
}

// Metrics returns the town's counters, including failed listener deliveries.
func (t *Town) Metrics() map[string]int64 {
	snap := t.metrics.Snapshot()
	snap["listener_failures"] = t.bus.Failures()
	snap["listeners"] = int64(t.bus.Len())
	snap["occupancy"] = int64(t.Occupancy())
	return snap
}

// AddPlayer admits a new player named userName.
// The video credential is requested before the town lock is taken; the
// admission itself is atomic and listeners see player-joined only on success.
//
// Precondition: userName must be non-empty.
// Postcondition: Returns the new session, or an error with no state changed:
// *ProviderError when the credential request fails, ErrTownFull, or ErrTownClosed.
func (t *Town) AddPlayer(ctx context.Context, userName string) (*session.Session, error) {
	if userName == "" {
		return nil, fmt.Errorf("user %w", ErrEmptyName)
	}
	if err := t.admissible(); err != nil {
		return nil, err
	}

	playerID := uuid.NewString()
	videoToken, err := t.provider.Token(ctx, t.id, playerID)
	if err != nil {
		t.metrics.ProviderFailures.Add(1)
		t.logger.Error("video token request failed",
			zap.String("player_id", playerID),
			zap.Error(err),
		)
		return nil, &ProviderError{TownID: t.id, PlayerID: playerID, Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.admissibleLocked(); err != nil {
		return nil, err
	}
	player := &world.Player{ID: playerID, UserName: userName, Location: world.DefaultLocation}
	sess, err := t.registry.Admit(player, videoToken)
	if err != nil {
		return nil, fmt.Errorf("admitting player: %w", err)
	}
	t.metrics.PlayersAdmitted.Add(1)
	t.logger.Info("player joined",
		zap.String("player_id", playerID),
		zap.String("user_name", userName),
	)
	t.refreshViewLocked()
	t.bus.PlayerJoined(*player)
	return sess, nil
}

// LookupSession returns the live session for token.
//
// Postcondition: Returns (session, true) if the token is valid in an open town, or (nil, false).
func (t *Town) LookupSession(token string) (*session.Session, bool) {
	if t.Closed() {
		return nil, false
	}
	return t.registry.Lookup(token)
}

// UpdatePlayerLocation moves the session's player to loc and resolves any
// conversation area change. Emits area events (old, then new) followed by
// exactly one player-moved.
//
// Postcondition: Returns session.ErrSessionNotFound for a destroyed session, or ErrTownClosed.
func (t *Town) UpdatePlayerLocation(sess *session.Session, loc world.Location) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.liveSessionLocked(sess); err != nil {
		return err
	}
	tr := t.areas.Resolve(sess.Player, loc)
	t.refreshViewLocked()
	t.emitTransitionLocked(tr)
	t.metrics.Moves.Add(1)
	t.bus.PlayerMoved(*sess.Player)
	return nil
}

// AddConversationArea activates candidate and assigns the unassigned players
// inside it. Exactly one conversation-area-updated is emitted on success.
//
// Postcondition: Returns the created area, or a validation error from the
// area package with no side effects, or ErrTownClosed.
func (t *Town) AddConversationArea(candidate world.ConversationArea) (world.ConversationArea, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return world.ConversationArea{}, ErrTownClosed
	}
	created, err := t.areas.Create(candidate, t.registry.ConnectedPlayers())
	if err != nil {
		t.metrics.AreasRejected.Add(1)
		return world.ConversationArea{}, err
	}
	t.metrics.AreasCreated.Add(1)
	t.logger.Info("conversation area created",
		zap.String("label", created.Label),
		zap.Int("occupants", len(created.OccupantIDs)),
	)
	t.refreshViewLocked()
	t.bus.AreaUpdated(created)
	return created, nil
}

// DestroySession removes the session's player from the town. Its area is
// left exactly as by a move to no area, then player-disconnected is emitted.
//
// Postcondition: The token no longer authenticates.
func (t *Town) DestroySession(sess *session.Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.liveSessionLocked(sess); err != nil {
		return err
	}
	if err := t.registry.Remove(sess); err != nil {
		return err
	}
	tr := t.areas.Leave(sess.Player)
	t.refreshViewLocked()
	t.emitTransitionLocked(tr)
	t.metrics.PlayersDisconnected.Add(1)
	t.logger.Info("player disconnected", zap.String("player_id", sess.Player.ID))
	t.bus.PlayerDisconnected(*sess.Player)
	return nil
}

// DisconnectAllPlayers destroys every session and closes the town. Listeners
// receive exactly one town-destroyed and no per-player events. Further calls
// are no-ops.
func (t *Town) DisconnectAllPlayers() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return
	}
	t.closed.Store(true)
	dropped := t.registry.Clear()
	t.areas.Reset()
	t.logger.Info("town closing", zap.Int("players", len(dropped)))
	t.refreshViewLocked()
	t.bus.TownDestroyed()
}

// AddListener subscribes l to this town's events. It waits for any mutation
// in flight, so l receives either all or none of a mutation's events.
func (t *Town) AddListener(l broadcast.Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bus.Subscribe(l)
}

// RemoveListener unsubscribes l; removing an absent listener is a no-op.
// Like AddListener it takes effect between mutations.
func (t *Town) RemoveListener(l broadcast.Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bus.Unsubscribe(l)
}

// Players returns a point-in-time copy of the connected players.
// Inside a listener callback it reflects the mutation being delivered.
func (t *Town) Players() []world.Player {
	v := t.view.Load()
	out := make([]world.Player, len(v.players))
	copy(out, v.players)
	return out
}

// ConversationAreas returns a point-in-time copy of the active areas.
func (t *Town) ConversationAreas() []world.ConversationArea {
	v := t.view.Load()
	out := make([]world.ConversationArea, len(v.areas))
	for i, a := range v.areas {
		out[i] = a.Clone()
	}
	return out
}

// refreshViewLocked publishes the current players and areas to the accessors.
func (t *Town) refreshViewLocked() {
	t.view.Store(&view{players: t.registry.Players(), areas: t.areas.Areas()})
}

func (t *Town) admissible() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.admissibleLocked()
}

func (t *Town) admissibleLocked() error {
	if t.closed.Load() {
		return ErrTownClosed
	}
	if t.registry.Count() >= t.capacity {
		return fmt.Errorf("%w: capacity %d", ErrTownFull, t.capacity)
	}
	return nil
}

func (t *Town) liveSessionLocked(sess *session.Session) error {
	if t.closed.Load() {
		return ErrTownClosed
	}
	if cur, ok := t.registry.Lookup(sess.Token); !ok || cur != sess {
		return session.ErrSessionNotFound
	}
	return nil
}

// emitTransitionLocked publishes the area events of tr: the old area is either
// updated or destroyed, never both, then the new area is updated.
func (t *Town) emitTransitionLocked(tr area.Transition) {
	if tr.Old != nil {
		if tr.OldDestroyed {
			t.metrics.AreasDestroyed.Add(1)
			t.logger.Info("conversation area destroyed", zap.String("label", tr.Old.Label))
			t.bus.AreaDestroyed(*tr.Old)
		} else {
			t.bus.AreaUpdated(*tr.Old)
		}
	}
	if tr.New != nil {
		t.bus.AreaUpdated(*tr.New)
	}
}

// setMetadata applies a directory update.
func (t *Town) setMetadata(friendlyName *string, public *bool) {
	t.metaMu.Lock()
	defer t.metaMu.Unlock()
	if friendlyName != nil {
		t.friendlyName = *friendlyName
	}
	if public != nil {
		t.public = *public
	}
}
