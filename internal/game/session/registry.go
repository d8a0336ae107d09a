// Package session provides player admission tracking and session token
// management for a single town.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/cory-johannsen/town/internal/game/world"
)

// tokenBytes is the amount of entropy in a session token.
const tokenBytes = 32

// ErrPlayerExists is returned when a player id is admitted twice.
var ErrPlayerExists = errors.New("player already connected")

// ErrSessionNotFound is returned when a session is unknown to the registry.
var ErrSessionNotFound = errors.New("session not found")

// Session binds a connected player to the token that authenticates it.
type Session struct {
	// Token is the opaque credential for every mutating call by this player.
	Token string
	// Player is the connected player. Only the owning town mutates it.
	Player *world.Player
	// VideoToken is the credential issued by the video-session provider.
	VideoToken string
}

// Registry tracks all connected players of a town and their sessions.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byToken  map[string]*Session // token → session
	byPlayer map[string]*Session // player id → session
	order    []string            // player ids in admission order
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byToken:  make(map[string]*Session),
		byPlayer: make(map[string]*Session),
	}
}

// Admit registers player as connected and allocates a session for it.
//
// Precondition: player must be non-nil with a non-empty ID.
// Postcondition: Returns the created Session with a fresh token, or
// ErrPlayerExists if the player id is already registered.
func (r *Registry) Admit(player *world.Player, videoToken string) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPlayer[player.ID]; exists {
		return nil, fmt.Errorf("admitting %q: %w", player.ID, ErrPlayerExists)
	}

	sess := &Session{Token: token, Player: player, VideoToken: videoToken}
	r.byToken[token] = sess
	r.byPlayer[player.ID] = sess
	r.order = append(r.order, player.ID)
	return sess, nil
}

// Lookup returns the session for token.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (r *Registry) Lookup(token string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byToken[token]
	return sess, ok
}

// Remove drops sess from all tracking; its token stops authenticating.
//
// Postcondition: Returns ErrSessionNotFound if sess is not registered.
func (r *Registry) Remove(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byToken[sess.Token]; !ok || cur != sess {
		return fmt.Errorf("removing session for %q: %w", sess.Player.ID, ErrSessionNotFound)
	}
	delete(r.byToken, sess.Token)
	delete(r.byPlayer, sess.Player.ID)
	for i, id := range r.order {
		if id == sess.Player.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes every session and returns them in admission order.
func (r *Registry) Clear() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byPlayer[id])
	}
	r.byToken = make(map[string]*Session)
	r.byPlayer = make(map[string]*Session)
	r.order = nil
	return out
}

// ConnectedPlayers returns the live player pointers in admission order.
// Callers must hold the owning town's lock to mutate them.
func (r *Registry) ConnectedPlayers() []*world.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*world.Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byPlayer[id].Player)
	}
	return out
}

// Players returns a point-in-time copy of every connected player.
//
// Postcondition: Returns a slice of copies (may be empty); later mutations are not reflected.
func (r *Registry) Players() []world.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]world.Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byPlayer[id].Player)
	}
	return out
}

// Count returns the number of connected players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
