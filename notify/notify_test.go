package notify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dylanconnolly/segon-client/client"
	"github.com/dylanconnolly/segon-client/trivia"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	subj string
	data []byte
}

type fakePublisher struct {
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subj, data})
	return nil
}

func TestSubject(t *testing.T) {
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	assert.Equal(t, "segon.sessions.7d444840-9dc0-11d1-b245-5ffdce74fad2.phase", Subject(id))
}

func TestObservePublishesPhaseEvent(t *testing.T) {
	fake := &fakePublisher{}
	p := newPublisher(fake, zerolog.Nop())

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := client.Snapshot{
		ID:        uuid.New(),
		Username:  "alice",
		Connected: true,
		State:     trivia.State{Phase: trivia.PhaseEnded, Score: 42, UpdatedAt: at},
	}
	p.Observe(snap)

	require.Len(t, fake.msgs, 1)
	assert.Equal(t, Subject(snap.ID), fake.msgs[0].subj)

	var got map[string]any
	require.NoError(t, json.Unmarshal(fake.msgs[0].data, &got))
	assert.Equal(t, snap.ID.String(), got["session_id"])
	assert.Equal(t, "alice", got["username"])
	assert.Equal(t, "Ended", got["phase"])
	assert.Equal(t, float64(42), got["score"])
	assert.Equal(t, "2024-05-01T12:00:00Z", got["at"])
	assert.NotContains(t, got, "question")
}

func TestPhaseEventCarriesQuestion(t *testing.T) {
	ev := NewPhaseEvent(client.Snapshot{
		State: trivia.State{
			Phase:    trivia.PhaseQuestionActive,
			Question: &trivia.Question{Question: "Capital of France?", Options: []string{"Paris"}},
			Answered: trivia.One,
		},
	})
	assert.Equal(t, "Capital of France?", ev.Question)
	assert.Equal(t, "One", ev.Answered)
}

func TestPublishErrorIsNotFatal(t *testing.T) {
	p := newPublisher(&fakePublisher{err: errors.New("nats: connection closed")}, zerolog.Nop())
	assert.NotPanics(t, func() {
		p.Observe(client.Snapshot{ID: uuid.New()})
	})
}

func TestDisconnectedPublisherDrops(t *testing.T) {
	p := &Publisher{log: zerolog.Nop()}
	assert.False(t, p.Connected())
	assert.NotPanics(t, func() {
		p.Observe(client.Snapshot{ID: uuid.New()})
		p.Close()
	})
}

func TestConnectUnreachable(t *testing.T) {
	p := Connect("nats://127.0.0.1:1", zerolog.Nop())
	assert.False(t, p.Connected())
	p.Close()
}
