package gameserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/town/internal/game/town"
	"github.com/cory-johannsen/town/internal/testutil"
)

type testServer struct {
	*httptest.Server
	dir      *town.Directory
	provider *testutil.FakeProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	provider := &testutil.FakeProvider{}
	dir := town.NewDirectory(town.DirectoryConfig{Capacity: 4, PasswordCost: bcrypt.MinCost}, provider, logger)
	router := NewRouter(NewAdminHandler(dir, logger), NewSubscriptionHandler(dir, []string{"*"}, 32, logger))
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		dir.CloseAll()
		srv.Close()
	})
	return &testServer{Server: srv, dir: dir, provider: provider}
}

type testEnvelope struct {
	IsOK     bool            `json:"isOK"`
	Response json.RawMessage `json:"response"`
	Message  string          `json:"message"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, testEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env testEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) createTown(t *testing.T, name string, public bool) townCreateResponse {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/towns", townCreateRequest{FriendlyName: name, IsPubliclyListed: public})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var out townCreateResponse
	require.NoError(t, json.Unmarshal(env.Response, &out))
	return out
}

func (s *testServer) join(t *testing.T, townID, userName string) joinResponse {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/sessions", joinRequest{TownID: townID, UserName: userName})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var out joinResponse
	require.NoError(t, json.Unmarshal(env.Response, &out))
	return out
}

// waitListeners blocks until the town has n subscribed listeners.
func (s *testServer) waitListeners(t *testing.T, townID string, n int64) {
	t.Helper()
	tw, ok := s.dir.Get(townID)
	require.True(t, ok)
	require.Eventually(t, func() bool { return tw.Metrics()["listeners"] == n }, 2*time.Second, 5*time.Millisecond)
}
