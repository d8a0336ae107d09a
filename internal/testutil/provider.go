package testutil

import (
	"context"
	"fmt"
	"sync"
)

// FakeProvider is an in-memory video-session provider.
// Tokens have the form "video:<town>:<player>". Set Err to fail every request.
type FakeProvider struct {
	mu       sync.Mutex
	Err      error
	requests []string
	// Gate, when non-nil, blocks each request until it receives a value.
	Gate chan struct{}
}

// Token implements video.Provider.
func (f *FakeProvider) Token(ctx context.Context, townID, playerID string) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, townID+"/"+playerID)
	err := f.Err
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("video:%s:%s", townID, playerID), nil
}

// SetErr replaces the error returned by subsequent requests.
func (f *FakeProvider) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Requests returns the "town/player" pairs requested so far.
func (f *FakeProvider) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}
