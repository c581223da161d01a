package status_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dylanconnolly/segon-client/client"
	"github.com/dylanconnolly/segon-client/redis"
	"github.com/dylanconnolly/segon-client/status"
	"github.com/dylanconnolly/segon-client/trivia"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "http://localhost:3000"

type fakeLeaderboard struct {
	n int64
}

func (f *fakeLeaderboard) Leaderboard(_ context.Context, n int64) ([]redis.Standing, error) {
	f.n = n
	return []redis.Standing{{Username: "alice", Score: 9}, {Username: "bob", Score: 4}}, nil
}

func newStatusServer(t *testing.T, opts ...status.Option) (*httptest.Server, *client.Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := client.NewHub()
	go hub.Run(ctx)

	s := httptest.NewServer(status.NewRouter(status.NewStatusServer(hub, zerolog.Nop(), opts...), []string{origin}))
	t.Cleanup(s.Close)
	return s, hub
}

func get(t *testing.T, url string, v any) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", origin)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestSessions(t *testing.T) {
	s, hub := newStatusServer(t)

	alice := client.Snapshot{ID: uuid.New(), Username: "alice", Connected: true, State: trivia.State{Phase: trivia.PhaseQuestionActive}}
	bob := client.Snapshot{ID: uuid.New(), Username: "bob", State: trivia.State{Phase: trivia.PhaseEnded, Score: 3}}
	hub.Observe(bob)
	hub.Observe(alice)

	var snaps []client.Snapshot
	resp := get(t, s.URL+"/sessions", &snaps)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, origin, resp.Header.Get("Access-Control-Allow-Origin"))

	require.Len(t, snaps, 2)
	assert.Equal(t, alice.ID, snaps[0].ID)
	assert.Equal(t, trivia.PhaseQuestionActive, snaps[0].State.Phase)
	assert.True(t, snaps[0].Connected)
	assert.Equal(t, float64(3), snaps[1].State.Score)

	var one client.Snapshot
	resp = get(t, s.URL+"/sessions/"+bob.ID.String(), &one)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob", one.Username)
}

func TestSessionErrors(t *testing.T) {
	s, _ := newStatusServer(t)

	resp := get(t, s.URL+"/sessions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = get(t, s.URL+"/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	s, _ := newStatusServer(t,
		status.WithCheck("redis", func(context.Context) error { return nil }),
		status.WithCheck("nats", func(context.Context) error { return errors.New("disconnected") }),
	)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	resp := get(t, s.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"redis": "ok", "nats": "disconnected"}, body.Dependencies)
}

func TestLeaderboard(t *testing.T) {
	s, _ := newStatusServer(t)
	resp := get(t, s.URL+"/leaderboard", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	lb := &fakeLeaderboard{}
	s, _ = newStatusServer(t, status.WithLeaderboard(lb))

	var standings []redis.Standing
	resp = get(t, s.URL+"/leaderboard?n=2", &standings)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), lb.n)
	require.Len(t, standings, 2)
	assert.Equal(t, "alice", standings[0].Username)
	assert.Equal(t, 9.0, standings[0].Score)

	resp = get(t, s.URL+"/leaderboard?n=zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
