package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dylanconnolly/segon-client/client"
	"github.com/dylanconnolly/segon-client/player"
	"github.com/dylanconnolly/segon-client/trivia"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshots struct {
	mu    sync.Mutex
	snaps []client.Snapshot
}

func (s *snapshots) Observe(snap client.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *snapshots) phases() []trivia.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trivia.Phase
	for _, snap := range s.snaps {
		out = append(out, snap.State.Phase)
	}
	return out
}

func runSession(t *testing.T, cfg client.SessionConfig, strategy player.Strategy, play func(ws *websocket.Conn), observers ...client.Observer) (*client.Session, error) {
	t.Helper()

	s := newGameServer(t, play)
	cfg.Username = "alice"
	cfg.Conn.ServerURL = s.URL
	sess := client.NewSession(cfg, strategy, zerolog.Nop(), observers...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sess, sess.Run(ctx, testToken)
}

func TestSessionAnswersQuestion(t *testing.T) {
	answers := make(chan string, 4)
	obs := &snapshots{}

	sess, err := runSession(t, client.SessionConfig{}, player.Scripted(3), func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"TimeTillGame","time":3}`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"GameStart"}`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"Question","question":"Pick","options":["A","B","C"]}`))
		if _, b, err := ws.ReadMessage(); err == nil {
			answers <- string(b)
		}
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"Answer","status":"Correct","answer_idx":"Three"}`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"GameEnd","score":42}`))
		closeNormally(ws)
	}, obs)
	require.NoError(t, err)

	require.Len(t, answers, 1)
	assert.JSONEq(t, `{"type":"Answer","answer_idx":"Three"}`, <-answers)

	result := sess.Result()
	assert.Equal(t, trivia.PhaseEnded, result.Phase)
	assert.Equal(t, float64(42), result.Score)
	assert.Equal(t, trivia.PhaseEnded, sess.State().Phase)

	assert.Equal(t, []trivia.Phase{
		trivia.PhaseIdle,
		trivia.PhaseAwaitingGame,
		trivia.PhaseAwaitingQuestion,
		trivia.PhaseQuestionActive,
		trivia.PhaseAnswerAcknowledged,
		trivia.PhaseEnded,
		trivia.PhaseEnded,
	}, obs.phases())
}

func TestSessionSurvivesUndecodableFrame(t *testing.T) {
	sess, err := runSession(t, client.SessionConfig{}, player.Fixed(1), func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"Mystery"}`))
		ws.WriteMessage(websocket.TextMessage, []byte(`not json`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"NoGame"}`))
		closeNormally(ws)
	})
	require.NoError(t, err)
	assert.Equal(t, trivia.PhaseNoGameAvailable, sess.Result().Phase)
}

func TestSessionPrimesOnOpen(t *testing.T) {
	first := make(chan string, 1)
	_, err := runSession(t, client.SessionConfig{Prime: true}, player.Fixed(1), func(ws *websocket.Conn) {
		if _, b, err := ws.ReadMessage(); err == nil {
			first <- string(b)
		}
		closeNormally(ws)
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Answer","answer_idx":"One"}`, <-first)
}

func TestSessionDoesNotPrimeByDefault(t *testing.T) {
	got := make(chan string, 4)
	_, err := runSession(t, client.SessionConfig{}, player.Fixed(1), func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"NoGame"}`))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.SetReadDeadline(time.Now().Add(time.Second))
		for {
			_, b, err := ws.ReadMessage()
			if err != nil {
				return
			}
			got <- string(b)
		}
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSessionLostMidGame(t *testing.T) {
	obs := &snapshots{}
	sess, err := runSession(t, client.SessionConfig{}, player.Fixed(1), func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"TimeTillGame","time":5}`))
		ws.NetConn().Close()
	}, obs)

	var connErr *client.ConnectionError
	require.True(t, errors.As(err, &connErr))

	assert.Equal(t, trivia.PhaseAwaitingGame, sess.Result().Phase)
	assert.Equal(t, trivia.PhaseIdle, sess.State().Phase)

	phases := obs.phases()
	require.GreaterOrEqual(t, len(phases), 2)
	assert.Equal(t, []trivia.Phase{trivia.PhaseAwaitingGame, trivia.PhaseIdle}, phases[len(phases)-2:])
}

func TestSessionOpenFailure(t *testing.T) {
	sess := client.NewSession(client.SessionConfig{
		Username: "alice",
		Conn:     client.ConnConfig{ServerURL: "http://127.0.0.1:1"},
	}, player.Fixed(1), zerolog.Nop())

	err := sess.Run(context.Background(), testToken)
	var connErr *client.ConnectionError
	assert.True(t, errors.As(err, &connErr))
	assert.Equal(t, trivia.PhaseIdle, sess.Result().Phase)
}

func TestConcurrentSessionsAreIsolated(t *testing.T) {
	streams := map[string][]string{
		"tok-two": {
			`{"type":"TimeTillGame","time":5}`,
			`{"type":"GameStart"}`,
			`{"type":"Question","question":"2+2?","options":["3","4","5","22"]}`,
			`{"type":"Answer","status":"Correct","answer_idx":"Two"}`,
			`{"type":"GameEnd","score":2.5}`,
		},
		"tok-four": {
			`{"type":"Question","question":"Capital of Peru?","options":["Quito","Bogota","Santiago","Lima"]}`,
			`{"type":"Answer","status":"Incorrect","answer_idx":"Four"}`,
			`{"type":"NoGame"}`,
		},
	}

	var mu sync.Mutex
	answers := make(map[string][]string)

	s := newTokenServer(t, []string{"tok-two", "tok-four"}, func(token string, ws *websocket.Conn) {
		for _, frame := range streams[token] {
			ws.WriteMessage(websocket.TextMessage, []byte(frame))
			ev, err := trivia.Decode([]byte(frame))
			if err != nil || ev.Type() != trivia.EventTypeQuestion {
				continue
			}
			_, b, err := ws.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			answers[token] = append(answers[token], string(b))
			mu.Unlock()
		}
		closeNormally(ws)
	})

	twoObs, fourObs := &snapshots{}, &snapshots{}
	two := client.NewSession(client.SessionConfig{Username: "two", Conn: client.ConnConfig{ServerURL: s.URL}}, player.Scripted(2), zerolog.Nop(), twoObs)
	four := client.NewSession(client.SessionConfig{Username: "four", Conn: client.ConnConfig{ServerURL: s.URL}}, player.Fixed(4), zerolog.Nop(), fourObs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for token, sess := range map[string]*client.Session{"tok-two": two, "tok-four": four} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sess.Run(ctx, token))
		}()
	}
	wg.Wait()

	mu.Lock()
	require.Len(t, answers["tok-two"], 1)
	require.Len(t, answers["tok-four"], 1)
	assert.JSONEq(t, `{"type":"Answer","answer_idx":"Two"}`, answers["tok-two"][0])
	assert.JSONEq(t, `{"type":"Answer","answer_idx":"Four"}`, answers["tok-four"][0])
	mu.Unlock()

	assert.Equal(t, trivia.PhaseEnded, two.Result().Phase)
	assert.Equal(t, 2.5, two.Result().Score)
	assert.Equal(t, []trivia.Phase{
		trivia.PhaseIdle,
		trivia.PhaseAwaitingGame,
		trivia.PhaseAwaitingQuestion,
		trivia.PhaseQuestionActive,
		trivia.PhaseAnswerAcknowledged,
		trivia.PhaseEnded,
		trivia.PhaseEnded,
	}, twoObs.phases())

	assert.Equal(t, trivia.PhaseNoGameAvailable, four.Result().Phase)
	assert.Zero(t, four.Result().Score)
	assert.Equal(t, []trivia.Phase{
		trivia.PhaseIdle,
		trivia.PhaseQuestionActive,
		trivia.PhaseAnswerAcknowledged,
		trivia.PhaseNoGameAvailable,
		trivia.PhaseNoGameAvailable,
	}, fourObs.phases())

	assert.NotEqual(t, two.ID, four.ID)
	for _, snap := range twoObs.snaps {
		assert.Equal(t, two.ID, snap.ID)
	}
	for _, snap := range fourObs.snaps {
		assert.Equal(t, four.ID, snap.ID)
	}
}
