package gameserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/town/internal/game/world"
	"github.com/cory-johannsen/town/internal/testutil"
)

const wsTimeout = 2 * time.Second

func (s *testServer) subscribe(t *testing.T, townID string, joined joinResponse) *testutil.WSClient {
	t.Helper()
	tw, ok := s.dir.Get(townID)
	require.True(t, ok)
	before := tw.Metrics()["listeners"]

	c, _, err := testutil.DialWS(t, s.URL, "/ws", url.Values{"townID": {townID}, "token": {joined.SessionToken}})
	require.NoError(t, err)
	s.waitListeners(t, townID, before+1)
	return c
}

func playerField(t *testing.T, msg map[string]any, field string) any {
	t.Helper()
	p, ok := msg["player"].(map[string]any)
	require.True(t, ok, "message has no player: %v", msg)
	return p[field]
}

func areaField(t *testing.T, msg map[string]any, field string) any {
	t.Helper()
	a, ok := msg["conversationArea"].(map[string]any)
	require.True(t, ok, "message has no conversationArea: %v", msg)
	return a[field]
}

func TestSubscription_RejectsUnknownTown(t *testing.T) {
	s := newTestServer(t)
	_, resp, err := testutil.DialWS(t, s.URL, "/ws", url.Values{"townID": {"NOPE"}, "token": {"x"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubscription_RejectsInvalidToken(t *testing.T) {
	s := newTestServer(t)
	created := s.createTown(t, "Square", true)
	_, resp, err := testutil.DialWS(t, s.URL, "/ws", url.Values{"townID": {created.TownID}, "token": {"forged"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tw, _ := s.dir.Get(created.TownID)
	assert.Equal(t, int64(0), tw.Metrics()["listeners"])
}

func TestSubscription_NewPlayerAndMovement(t *testing.T) {
	s := newTestServer(t)
	created := s.createTown(t, "Square", true)
	alice := s.join(t, created.TownID, "alice")
	aliceWS := s.subscribe(t, created.TownID, alice)

	bob := s.join(t, created.TownID, "bob")
	msg := aliceWS.ReadUntil(MsgNewPlayer, wsTimeout)
	assert.Equal(t, bob.UserID, playerField(t, msg, "id"))
	assert.Equal(t, "bob", playerField(t, msg, "userName"))

	bobWS := s.subscribe(t, created.TownID, bob)
	bobWS.Send(ClientMessage{Type: MsgPlayerMovement, Location: &world.Location{X: 3, Y: 4, Rotation: world.Left, Moving: true}})

	msg = aliceWS.ReadUntil(MsgPlayerMoved, wsTimeout)
	assert.Equal(t, bob.UserID, playerField(t, msg, "id"))
	loc := playerField(t, msg, "location").(map[string]any)
	assert.Equal(t, 3.0, loc["x"])
	assert.Equal(t, 4.0, loc["y"])

	own := bobWS.ReadUntil(MsgPlayerMoved, wsTimeout)
	assert.Equal(t, bob.UserID, playerField(t, own, "id"), "the mover also receives its own movement")
}

func TestSubscription_ConversationAreaMessages(t *testing.T) {
	s := newTestServer(t)
	created := s.createTown(t, "Square", true)
	alice := s.join(t, created.TownID, "alice")
	aliceWS := s.subscribe(t, created.TownID, alice)

	status, env := s.do(t, http.MethodPost, "/towns/"+created.TownID+"/conversationAreas", areaCreateRequest{
		SessionToken:     alice.SessionToken,
		ConversationArea: world.ConversationArea{Label: "L1", Topic: "chat", Box: world.BoundingBox{X: 5, Y: 5, Width: 10, Height: 10}},
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	msg := aliceWS.ReadUntil(MsgConversationUpdated, wsTimeout)
	assert.Equal(t, "L1", areaField(t, msg, "label"))

	aliceWS.Send(ClientMessage{Type: MsgPlayerMovement, Location: &world.Location{X: 9, Y: 10, Rotation: world.Front}})
	msg = aliceWS.ReadMessage(wsTimeout)
	require.Equal(t, MsgConversationUpdated, msg["type"])
	assert.Equal(t, []any{alice.UserID}, areaField(t, msg, "occupantsByID"))
	msg = aliceWS.ReadMessage(wsTimeout)
	require.Equal(t, MsgPlayerMoved, msg["type"])
	assert.Equal(t, "L1", playerField(t, msg, "activeConversationArea"))

	aliceWS.Send(ClientMessage{Type: MsgPlayerMovement, Location: &world.Location{X: 50, Y: 50, Rotation: world.Front}})
	msg = aliceWS.ReadMessage(wsTimeout)
	require.Equal(t, MsgConversationDestroyed, msg["type"])
	assert.Equal(t, "L1", areaField(t, msg, "label"))
	msg = aliceWS.ReadMessage(wsTimeout)
	assert.Equal(t, MsgPlayerMoved, msg["type"])
}

func TestSubscription_IgnoresMalformedMessages(t *testing.T) {
	s := newTestServer(t)
	created := s.createTown(t, "Square", true)
	alice := s.join(t, created.TownID, "alice")
	aliceWS := s.subscribe(t, created.TownID, alice)

	aliceWS.Send("not an object")
	aliceWS.Send(ClientMessage{Type: "teleport"})
	aliceWS.Send(ClientMessage{Type: MsgPlayerMovement})
	aliceWS.Send(ClientMessage{Type: MsgPlayerMovement, Location: &world.Location{X: 1, Y: 2, Rotation: "sideways"}})
	aliceWS.Send(ClientMessage{Type: MsgPlayerMovement, Location: &world.Location{X: 1, Y: 2, Rotation: world.Back}})

	msg := aliceWS.ReadMessage(wsTimeout)
	assert.Equal(t, MsgPlayerMoved, msg["type"])
}

func TestSubscription_MovementWithoutRotationFacesFront(t *testing.T) {
	s := newTestServer(t)
	created := s.createTown(t, "Square", true)
	alice := s.join(t, created.TownID, "alice")
	aliceWS := s.subscribe(t, created.TownID, alice)

	aliceWS.Send(map[string]any{"type": MsgPlayerMovement, "location": map[string]any{"x": 7, "y": 8, "moving": false}})

	msg := aliceWS.ReadUntil(MsgPlayerMoved, wsTimeout)
	loc := playerField(t, msg, "location").(map[string]any)
	assert.Equal(t, 7.0, loc["x"])
	assert.Equal(t, string(world.Front), loc["rotation"])
}

func TestSubscription_CloseDestroysSession(t *testing.T) {
	s := newTestServer(t)
	created := s.createTown(t, "Square", true)
	alice := s.join(t, created.TownID, "alice")
	bob := s.join(t, created.TownID, "bob")
	aliceWS := s.subscribe(t, created.TownID, alice)
	bobWS := s.subscribe(t, created.TownID, bob)

	bobWS.Close()

	msg := aliceWS.ReadUntil(MsgPlayerDisconnect, wsTimeout)
	assert.Equal(t, bob.UserID, playerField(t, msg, "id"))

	tw, _ := s.dir.Get(created.TownID)
	assert.Equal(t, 1, tw.Occupancy())
	_, ok := tw.LookupSession(bob.SessionToken)
	assert.False(t, ok)
	s.waitListeners(t, created.TownID, 1)
}

func TestSubscription_TownDeletionClosesClients(t *testing.T) {
	s := newTestServer(t)
	created := s.createTown(t, "Square", true)
	alice := s.join(t, created.TownID, "alice")
	aliceWS := s.subscribe(t, created.TownID, alice)

	status, env := s.do(t, http.MethodDelete, fmt.Sprintf("/towns/%s/%s", created.TownID, created.TownUpdatePassword), nil)
	require.Equal(t, http.StatusOK, status, env.Message)

	msg := aliceWS.ReadMessage(wsTimeout)
	assert.Equal(t, MsgTownClosing, msg["type"])
	aliceWS.ExpectClosed(wsTimeout)
}

func TestSubscription_CloseAllClosesClients(t *testing.T) {
	s := newTestServer(t)
	created := s.createTown(t, "Square", true)
	alice := s.join(t, created.TownID, "alice")
	aliceWS := s.subscribe(t, created.TownID, alice)

	s.dir.CloseAll()
	aliceWS.ReadUntil(MsgTownClosing, wsTimeout)
	aliceWS.ExpectClosed(wsTimeout)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://good.example"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "requests without Origin are not browser cross-origin")

	req.Header.Set("Origin", "http://good.example")
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	all := originChecker([]string{"*"})
	assert.True(t, all(req))
}
