package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/town/internal/game/world"
)

func newPlayer(id string) *world.Player {
	return &world.Player{ID: id, UserName: "user-" + id, Location: world.DefaultLocation}
}

func TestRegistry_Admit(t *testing.T) {
	r := NewRegistry()
	sess, err := r.Admit(newPlayer("u1"), "video-1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "video-1", sess.VideoToken)
	assert.Equal(t, "u1", sess.Player.ID)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_AdmitDuplicate(t *testing.T) {
	r := NewRegistry()
	_, err := r.Admit(newPlayer("u1"), "")
	require.NoError(t, err)
	_, err = r.Admit(newPlayer("u1"), "")
	assert.ErrorIs(t, err, ErrPlayerExists)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_TokensAreDistinct(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sess, err := r.Admit(newPlayer(fmt.Sprintf("u%d", i)), "")
		require.NoError(t, err)
		assert.False(t, seen[sess.Token], "token reused")
		seen[sess.Token] = true
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	sess, err := r.Admit(newPlayer("u1"), "")
	require.NoError(t, err)

	got, ok := r.Lookup(sess.Token)
	require.True(t, ok)
	assert.Same(t, sess, got)

	_, ok = r.Lookup("not-a-token")
	assert.False(t, ok)
}

func TestRegistry_RemoveInvalidatesToken(t *testing.T) {
	r := NewRegistry()
	sess, err := r.Admit(newPlayer("u1"), "")
	require.NoError(t, err)

	require.NoError(t, r.Remove(sess))
	_, ok := r.Lookup(sess.Token)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Players())

	assert.ErrorIs(t, r.Remove(sess), ErrSessionNotFound)
}

func TestRegistry_PlayersSnapshotInAdmissionOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		_, err := r.Admit(newPlayer(id), "")
		require.NoError(t, err)
	}

	players := r.Players()
	require.Len(t, players, 3)
	assert.Equal(t, "a", players[0].ID)
	assert.Equal(t, "b", players[1].ID)
	assert.Equal(t, "c", players[2].ID)

	players[0].Location.X = 99
	live := r.ConnectedPlayers()
	assert.Equal(t, 0.0, live[0].Location.X, "snapshot must not alias live state")
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	s1, _ := r.Admit(newPlayer("a"), "")
	s2, _ := r.Admit(newPlayer("b"), "")

	cleared := r.Clear()
	assert.Equal(t, []*Session{s1, s2}, cleared)
	assert.Equal(t, 0, r.Count())
	_, ok := r.Lookup(s1.Token)
	assert.False(t, ok)
}

func TestRegistry_ConcurrentAdmitRemove(t *testing.T) {
	r := NewRegistry()
	const n = 100
	sessions := make([]*Session, n)
	var wg sync.WaitGroup

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			sess, err := r.Admit(newPlayer(fmt.Sprintf("u%d", i)), "")
			if err == nil {
				sessions[i] = sess
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, r.Count())

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_ = r.Remove(sessions[i])
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
}

func TestPropertyLookupMatchesMembership(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		numPlayers := rapid.IntRange(1, 20).Draw(t, "num_players")
		sessions := make([]*Session, 0, numPlayers)
		for i := 0; i < numPlayers; i++ {
			sess, err := r.Admit(newPlayer(fmt.Sprintf("p%d", i)), "")
			if err != nil {
				t.Fatalf("admit: %v", err)
			}
			sessions = append(sessions, sess)
		}

		removed := make(map[int]bool)
		numRemoves := rapid.IntRange(0, numPlayers).Draw(t, "num_removes")
		for i := 0; i < numRemoves; i++ {
			idx := rapid.IntRange(0, numPlayers-1).Draw(t, "remove_idx")
			err := r.Remove(sessions[idx])
			if removed[idx] != (err != nil) {
				t.Fatalf("remove %d: removed=%v err=%v", idx, removed[idx], err)
			}
			removed[idx] = true
		}

		for i, sess := range sessions {
			_, ok := r.Lookup(sess.Token)
			if ok == removed[i] {
				t.Fatalf("session %d: lookup=%v removed=%v", i, ok, removed[i])
			}
		}
		if r.Count() != numPlayers-len(removed) {
			t.Fatalf("count %d != %d", r.Count(), numPlayers-len(removed))
		}
	})
}
