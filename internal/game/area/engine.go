// Package area owns the live conversation areas of a town and resolves how
// player movement changes their membership.
package area

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/town/internal/game/world"
)

// Validation errors returned by Create. None of them mutate the engine.
var (
	ErrEmptyLabel     = errors.New("conversation area label must not be empty")
	ErrEmptyTopic     = errors.New("conversation area topic must not be empty")
	ErrInvalidBounds  = errors.New("conversation area width and height must be positive")
	ErrDuplicateLabel = errors.New("conversation area label already in use")
	ErrOverlap        = errors.New("conversation area overlaps an existing area")
)

// Transition describes the membership change produced by one move.
// Old and New are snapshots taken after the change.
type Transition struct {
	// Old is the area the player left, or nil.
	Old *world.ConversationArea
	// OldDestroyed is true when Old lost its last occupant and was removed.
	OldDestroyed bool
	// New is the area the player joined, or nil.
	New *world.ConversationArea
}

// Changed reports whether the transition altered any membership.
func (t Transition) Changed() bool {
	return t.Old != nil || t.New != nil
}

// Engine holds the active conversation areas of one town.
// It is not safe for concurrent use; the owning town serializes access.
type Engine struct {
	areas   map[string]*world.ConversationArea
	ordered []string // labels in creation order
}

// NewEngine creates an Engine with no active areas.
func NewEngine() *Engine {
	return &Engine{areas: make(map[string]*world.ConversationArea)}
}

// Create activates candidate and pulls in every unassigned player standing
// strictly inside its box.
//
// Precondition: players is the town's full set of connected players.
// Postcondition: On success returns a snapshot of the new area with its final
// occupant set; on failure returns a sentinel error and nothing is changed.
func (e *Engine) Create(candidate world.ConversationArea, players []*world.Player) (world.ConversationArea, error) {
	switch {
	case candidate.Label == "":
		return world.ConversationArea{}, ErrEmptyLabel
	case candidate.Topic == "":
		return world.ConversationArea{}, ErrEmptyTopic
	case !candidate.Box.Valid():
		return world.ConversationArea{}, fmt.Errorf("%w: got %gx%g", ErrInvalidBounds, candidate.Box.Width, candidate.Box.Height)
	}
	if _, exists := e.areas[candidate.Label]; exists {
		return world.ConversationArea{}, fmt.Errorf("%w: %q", ErrDuplicateLabel, candidate.Label)
	}
	for _, label := range e.ordered {
		if e.areas[label].Box.Overlaps(candidate.Box) {
			return world.ConversationArea{}, fmt.Errorf("%w: %q", ErrOverlap, label)
		}
	}

	area := &world.ConversationArea{
		Label:       candidate.Label,
		Topic:       candidate.Topic,
		Box:         candidate.Box,
		OccupantIDs: []string{},
	}
	for _, p := range players {
		if p.ActiveArea == "" && p.IsWithin(area.Box) {
			p.ActiveArea = area.Label
			area.OccupantIDs = append(area.OccupantIDs, p.ID)
		}
	}
	e.areas[area.Label] = area
	e.ordered = append(e.ordered, area.Label)
	return area.Clone(), nil
}

// Resolve applies loc to p and moves p between areas as needed.
// An explicit conversation label wins over geometry; an unknown label
// resolves to no area.
//
// Postcondition: p.Location == loc; p.ActiveArea names the resolved area or is empty.
func (e *Engine) Resolve(p *world.Player, loc world.Location) Transition {
	p.Location = loc

	var target string
	if loc.ConversationLabel != "" {
		if _, ok := e.areas[loc.ConversationLabel]; ok {
			target = loc.ConversationLabel
		}
	} else {
		target = e.containing(loc.X, loc.Y)
	}
	return e.reassign(p, target)
}

// Leave removes p from its active area, exactly as a move to no area would.
func (e *Engine) Leave(p *world.Player) Transition {
	return e.reassign(p, "")
}

// Get returns a snapshot of the area with label.
//
// Postcondition: Returns (area, true) if active, or (zero, false) otherwise.
func (e *Engine) Get(label string) (world.ConversationArea, bool) {
	a, ok := e.areas[label]
	if !ok {
		return world.ConversationArea{}, false
	}
	return a.Clone(), true
}

// Areas returns snapshots of every active area in creation order.
func (e *Engine) Areas() []world.ConversationArea {
	out := make([]world.ConversationArea, 0, len(e.ordered))
	for _, label := range e.ordered {
		out = append(out, e.areas[label].Clone())
	}
	return out
}

// Count returns the number of active areas.
func (e *Engine) Count() int {
	return len(e.ordered)
}

// Reset drops every area without producing transitions.
func (e *Engine) Reset() {
	e.areas = make(map[string]*world.ConversationArea)
	e.ordered = nil
}

// containing returns the label of the area strictly containing (x, y).
// Active areas never overlap, so at most one matches.
func (e *Engine) containing(x, y float64) string {
	for _, label := range e.ordered {
		if e.areas[label].Box.Contains(x, y) {
			return label
		}
	}
	return ""
}

func (e *Engine) reassign(p *world.Player, target string) Transition {
	var tr Transition
	if target == p.ActiveArea {
		return tr
	}

	if old, ok := e.areas[p.ActiveArea]; ok {
		removeOccupant(old, p.ID)
		snap := old.Clone()
		tr.Old = &snap
		if len(old.OccupantIDs) == 0 {
			e.destroy(old.Label)
			tr.OldDestroyed = true
		}
	}

	p.ActiveArea = target
	if next, ok := e.areas[target]; ok {
		next.OccupantIDs = append(next.OccupantIDs, p.ID)
		snap := next.Clone()
		tr.New = &snap
	}
	return tr
}

func (e *Engine) destroy(label string) {
	delete(e.areas, label)
	for i, l := range e.ordered {
		if l == label {
			e.ordered = append(e.ordered[:i], e.ordered[i+1:]...)
			return
		}
	}
}

func removeOccupant(a *world.ConversationArea, playerID string) {
	for i, id := range a.OccupantIDs {
		if id == playerID {
			a.OccupantIDs = append(a.OccupantIDs[:i], a.OccupantIDs[i+1:]...)
			return
		}
	}
}
