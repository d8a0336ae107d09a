// Package world provides the town model shared by every game component:
// players, their locations, bounding boxes, and conversation areas.
package world

import "fmt"

// Direction is the way an avatar is facing.
type Direction string

// Facing directions reported by clients.
const (
	Front Direction = "front"
	Back  Direction = "back"
	Left  Direction = "left"
	Right Direction = "right"
)

// StandardDirections contains every facing direction a client may report.
var StandardDirections = []Direction{Front, Back, Left, Right}

// IsStandard reports whether d is one of the four facing directions.
func (d Direction) IsStandard() bool {
	for _, sd := range StandardDirections {
		if d == sd {
			return true
		}
	}
	return false
}

// Opposite returns the direction facing the other way.
// For unknown directions, it returns an empty string.
func (d Direction) Opposite() Direction {
	switch d {
	case Front:
		return Back
	case Back:
		return Front
	case Left:
		return Right
	case Right:
		return Left
	default:
		return ""
	}
}

// Location is a player's position and pose on the town plane.
type Location struct {
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Rotation Direction `json:"rotation"`
	Moving   bool      `json:"moving"`
	// ConversationLabel names the conversation area the client claims to be in.
	// Empty means the client makes no claim.
	ConversationLabel string `json:"conversationLabel,omitempty"`
}

// DefaultLocation is where newly admitted players are placed.
var DefaultLocation = Location{X: 0, Y: 0, Rotation: Front}

// BoundingBox is an axis-aligned rectangle whose minimum corner is (X, Y).
type BoundingBox struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Valid reports whether the box has a positive width and height.
func (b BoundingBox) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

// Overlaps reports whether the open interiors of b and o intersect.
// Boxes that share only an edge or a corner do not overlap.
func (b BoundingBox) Overlaps(o BoundingBox) bool {
	return b.X < o.X+o.Width && o.X < b.X+b.Width &&
		b.Y < o.Y+o.Height && o.Y < b.Y+b.Height
}

// Contains reports whether (x, y) lies strictly inside b.
// Points on the boundary are outside.
func (b BoundingBox) Contains(x, y float64) bool {
	return x > b.X && x < b.X+b.Width && y > b.Y && y < b.Y+b.Height
}

// Player is a connected participant.
type Player struct {
	// ID is the generated unique player identifier.
	ID string `json:"id"`
	// UserName is the display name chosen at join time.
	UserName string `json:"userName"`
	// Location is the last location reported for the player.
	Location Location `json:"location"`
	// ActiveArea is the label of the conversation area the player occupies.
	// It is a lookup key into the town's live areas, never an owning reference.
	ActiveArea string `json:"activeConversationArea,omitempty"`
}

// IsWithin reports whether the player's coordinates lie strictly inside box.
func (p *Player) IsWithin(box BoundingBox) bool {
	return box.Contains(p.Location.X, p.Location.Y)
}

// ConversationArea is a labelled rectangle that groups its occupants.
type ConversationArea struct {
	Label       string      `json:"label"`
	Topic       string      `json:"topic"`
	Box         BoundingBox `json:"boundingBox"`
	OccupantIDs []string    `json:"occupantsByID"`
}

// Clone returns a copy of a that shares no memory with it.
func (a ConversationArea) Clone() ConversationArea {
	out := a
	out.OccupantIDs = append([]string(nil), a.OccupantIDs...)
	return out
}

// HasOccupant reports whether playerID is in the occupant set.
func (a *ConversationArea) HasOccupant(playerID string) bool {
	for _, id := range a.OccupantIDs {
		if id == playerID {
			return true
		}
	}
	return false
}

// Validate checks the candidate's intrinsic invariants.
//
// Postcondition: Returns nil if valid, or an error describing the first violation.
func (a *ConversationArea) Validate() error {
	if a.Label == "" {
		return fmt.Errorf("conversation area label must not be empty")
	}
	if a.Topic == "" {
		return fmt.Errorf("conversation area %q: topic must not be empty", a.Label)
	}
	if !a.Box.Valid() {
		return fmt.Errorf("conversation area %q: width and height must be positive, got %gx%g", a.Label, a.Box.Width, a.Box.Height)
	}
	return nil
}
