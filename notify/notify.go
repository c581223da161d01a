// Package notify publishes session phase changes to NATS.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dylanconnolly/segon-client/client"
	"github.com/dylanconnolly/segon-client/trivia"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const subjectFormat = "segon.sessions.%s.phase"

type publisher interface {
	Publish(subj string, data []byte) error
}

// PhaseEvent is the payload published for every state change.
type PhaseEvent struct {
	SessionID uuid.UUID    `json:"session_id"`
	Username  string       `json:"username"`
	Phase     trivia.Phase `json:"phase"`
	Connected bool         `json:"connected"`
	Score     float64      `json:"score"`
	Countdown float64      `json:"countdown,omitempty"`
	Question  string       `json:"question,omitempty"`
	Answered  string       `json:"answered,omitempty"`
	At        time.Time    `json:"at"`
}

func Subject(id uuid.UUID) string {
	return fmt.Sprintf(subjectFormat, id)
}

func NewPhaseEvent(snap client.Snapshot) PhaseEvent {
	ev := PhaseEvent{
		SessionID: snap.ID,
		Username:  snap.Username,
		Phase:     snap.State.Phase,
		Connected: snap.Connected,
		Score:     snap.State.Score,
		Countdown: snap.State.Countdown,
		At:        snap.State.UpdatedAt,
	}
	if snap.State.Question != nil {
		ev.Question = snap.State.Question.Question
	}
	if snap.State.Answered.Valid() {
		ev.Answered = snap.State.Answered.String()
	}

	return ev
}

// Publisher forwards snapshots to NATS. A Publisher without a connection
// drops everything.
type Publisher struct {
	pub publisher
	nc  *nats.Conn
	log zerolog.Logger
}

// Connect dials url. When NATS is unreachable it logs a warning and returns a
// Publisher that drops events, so a run never depends on it.
func Connect(url string, log zerolog.Logger) *Publisher {
	if url == "" {
		url = nats.DefaultURL
	}

	log.Info().Str("url", url).Msg("connecting to NATS")
	nc, err := nats.Connect(url, nats.Name("segon-client"))
	if err != nil {
		log.Warn().Err(err).Msg("running without NATS, phase events will not be published")
		return &Publisher{log: log}
	}
	log.Info().Msg("connected to NATS")

	return &Publisher{pub: nc, nc: nc, log: log}
}

func newPublisher(pub publisher, log zerolog.Logger) *Publisher {
	return &Publisher{pub: pub, log: log}
}

// Connected reports whether events are actually being published.
func (p *Publisher) Connected() bool {
	if p.nc != nil {
		return p.nc.Status() == nats.CONNECTED
	}
	return p.pub != nil
}

func (p *Publisher) Observe(snap client.Snapshot) {
	if p.pub == nil {
		return
	}

	b, err := json.Marshal(NewPhaseEvent(snap))
	if err != nil {
		p.log.Error().Err(err).Msg("could not encode phase event")
		return
	}
	if err := p.pub.Publish(Subject(snap.ID), b); err != nil {
		p.log.Error().Err(err).Str("session", snap.ID.String()).Msg("could not publish phase event")
	}
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.log.Warn().Err(err).Msg("error draining NATS connection")
		p.nc.Close()
	}
}
