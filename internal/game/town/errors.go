package town

import (
	"errors"
	"fmt"
)

var (
	// ErrTownClosed is returned by every mutation after DisconnectAllPlayers.
	ErrTownClosed = errors.New("town is closed")
	// ErrTownFull is returned when a town is at capacity.
	ErrTownFull = errors.New("town is full")
	// ErrTownNotFound is returned when a town id is unknown to the directory.
	ErrTownNotFound = errors.New("town not found")
	// ErrInvalidPassword is returned when an update password does not match.
	ErrInvalidPassword = errors.New("invalid town update password")
	// ErrEmptyName is returned when a town or user name is empty.
	ErrEmptyName = errors.New("name must not be empty")
)

// ProviderError reports that the video-session provider refused or failed to
// issue a credential; the admission it belonged to was aborted.
type ProviderError struct {
	TownID   string
	PlayerID string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("video provider: token for player %q in town %q: %v", e.PlayerID, e.TownID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
