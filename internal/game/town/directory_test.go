package town

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/town/internal/testutil"
)

func newTestDirectory(t *testing.T) *Directory {
	return NewDirectory(DirectoryConfig{Capacity: 5, PasswordCost: bcrypt.MinCost}, &testutil.FakeProvider{}, zaptest.NewLogger(t))
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }

func TestDirectory_CreateAndGet(t *testing.T) {
	d := newTestDirectory(t)
	tw, password, err := d.Create("Square", true)
	require.NoError(t, err)
	assert.NotEmpty(t, password)
	assert.Len(t, tw.ID(), 8)
	assert.Equal(t, "Square", tw.FriendlyName())
	assert.True(t, tw.IsPubliclyListed())
	assert.Equal(t, 5, tw.Capacity())

	got, ok := d.Get(tw.ID())
	require.True(t, ok)
	assert.Same(t, tw, got)

	_, ok = d.Get("missing")
	assert.False(t, ok)
}

func TestDirectory_CreateRejectsEmptyName(t *testing.T) {
	d := newTestDirectory(t)
	_, _, err := d.Create("  ", true)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Equal(t, 0, d.Len())
}

func TestDirectory_CreateUniqueIDsAndPasswords(t *testing.T) {
	d := newTestDirectory(t)
	ids := make(map[string]bool)
	passwords := make(map[string]bool)
	for i := 0; i < 20; i++ {
		tw, pw, err := d.Create("Town", false)
		require.NoError(t, err)
		ids[tw.ID()] = true
		passwords[pw] = true
	}
	assert.Len(t, ids, 20)
	assert.Len(t, passwords, 20)
}

func TestDirectory_ListPublic(t *testing.T) {
	d := newTestDirectory(t)
	b, _, err := d.Create("Beta", true)
	require.NoError(t, err)
	a, _, err := d.Create("Alpha", true)
	require.NoError(t, err)
	_, _, err = d.Create("Hidden", false)
	require.NoError(t, err)

	_, err = b.AddPlayer(context.Background(), "alice")
	require.NoError(t, err)

	listed := d.ListPublic()
	require.Len(t, listed, 2)
	assert.Equal(t, Listing{TownID: a.ID(), FriendlyName: "Alpha", Occupancy: 0, Capacity: 5}, listed[0])
	assert.Equal(t, Listing{TownID: b.ID(), FriendlyName: "Beta", Occupancy: 1, Capacity: 5}, listed[1])
}

func TestDirectory_Update(t *testing.T) {
	d := newTestDirectory(t)
	tw, password, err := d.Create("Old", true)
	require.NoError(t, err)

	require.NoError(t, d.Update(tw.ID(), password, strPtr("New"), nil))
	assert.Equal(t, "New", tw.FriendlyName())
	assert.True(t, tw.IsPubliclyListed())

	require.NoError(t, d.Update(tw.ID(), password, nil, boolPtr(false)))
	assert.False(t, tw.IsPubliclyListed())
	assert.Empty(t, d.ListPublic())
}

func TestDirectory_UpdateRejections(t *testing.T) {
	d := newTestDirectory(t)
	tw, password, err := d.Create("Name", true)
	require.NoError(t, err)

	assert.ErrorIs(t, d.Update("nope", password, strPtr("x"), nil), ErrTownNotFound)
	assert.ErrorIs(t, d.Update(tw.ID(), "wrong", strPtr("x"), nil), ErrInvalidPassword)
	assert.ErrorIs(t, d.Update(tw.ID(), password, strPtr(""), boolPtr(false)), ErrEmptyName)

	assert.Equal(t, "Name", tw.FriendlyName())
	assert.True(t, tw.IsPubliclyListed(), "a rejected update applies nothing")
}

func TestDirectory_DeleteDisconnectsPlayers(t *testing.T) {
	d := newTestDirectory(t)
	tw, password, err := d.Create("Doomed", true)
	require.NoError(t, err)
	sess, err := tw.AddPlayer(context.Background(), "alice")
	require.NoError(t, err)
	rec := testutil.NewRecordingListener()
	tw.AddListener(rec)

	assert.ErrorIs(t, d.Delete(tw.ID(), "wrong"), ErrInvalidPassword)
	assert.False(t, tw.Closed())

	require.NoError(t, d.Delete(tw.ID(), password))
	assert.Equal(t, []testutil.EventKind{testutil.TownDestroyed}, rec.Kinds())
	_, ok := d.Get(tw.ID())
	assert.False(t, ok)
	_, ok = tw.LookupSession(sess.Token)
	assert.False(t, ok)

	assert.ErrorIs(t, d.Delete(tw.ID(), password), ErrTownNotFound)
}

func TestDirectory_ConcurrentDeleteClosesOnce(t *testing.T) {
	d := newTestDirectory(t)
	tw, password, err := d.Create("Race", true)
	require.NoError(t, err)
	rec := testutil.NewRecordingListener()
	tw.AddListener(rec)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- d.Delete(tw.ID(), password)
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrTownNotFound)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []testutil.EventKind{testutil.TownDestroyed}, rec.Kinds())
}

func TestDirectory_CloseAll(t *testing.T) {
	d := newTestDirectory(t)
	var towns []*Town
	for _, name := range []string{"a", "b", "c"} {
		tw, _, err := d.Create(name, true)
		require.NoError(t, err)
		towns = append(towns, tw)
	}

	d.CloseAll()
	assert.Equal(t, 0, d.Len())
	for _, tw := range towns {
		assert.True(t, tw.Closed())
	}
}
