package client

import (
	"context"
	"errors"
	"sync"

	"github.com/dylanconnolly/segon-client/player"
	"github.com/dylanconnolly/segon-client/trivia"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Snapshot is the externally visible view of one session, handed to
// observers after every change.
type Snapshot struct {
	ID        uuid.UUID    `json:"id"`
	Username  string       `json:"username"`
	Connected bool         `json:"connected"`
	State     trivia.State `json:"state"`
}

type Observer interface {
	Observe(s Snapshot)
}

type ObserverFunc func(s Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }

type SessionConfig struct {
	Username string
	Conn     ConnConfig

	// Prime sends Answer{One} as soon as the connection opens.
	Prime bool

	// CloseOnSendError ends the session when the transport rejects a reply.
	CloseOnSendError bool
}

// Session ties one connection to one interpreter for a single participant.
type Session struct {
	ID       uuid.UUID
	Username string

	cfg       SessionConfig
	conn      *Conn
	interp    *player.Interpreter
	observers []Observer
	log       zerolog.Logger

	mu        sync.Mutex
	connected bool
	result    trivia.State
	sendErr   error
}

func NewSession(cfg SessionConfig, strategy player.Strategy, log zerolog.Logger, observers ...Observer) *Session {
	s := &Session{
		ID:        uuid.New(),
		Username:  cfg.Username,
		cfg:       cfg,
		observers: observers,
	}
	s.log = log.With().Str("session", s.ID.String()).Str("username", cfg.Username).Logger()
	s.conn = NewConn(cfg.Conn, s, s.log)
	s.interp = player.New(strategy, s.conn,
		player.WithLogger(s.log),
		player.WithObserver(player.ObserverFunc(s.stateChanged)),
	)
	s.result = s.interp.State()

	return s
}

// Run connects with token and processes frames until the connection ends or
// ctx is cancelled. It returns a *ConnectionError for a failed or lost
// connection and a *SendError when a rejected reply closed the session.
func (s *Session) Run(ctx context.Context, token string) error {
	if err := s.conn.Open(ctx, token); err != nil {
		s.log.Error().Err(err).Msg("could not open game connection")
		return err
	}

	err := s.conn.Listen(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	return err
}

// Close ends the session's connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// State returns the current interpreter state.
func (s *Session) State() trivia.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interp.State()
}

// Result returns the state the session was in when its connection ended.
func (s *Session) Result() trivia.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) OnOpen(c *Conn) {
	s.mu.Lock()
	s.connected = true
	s.publish(s.interp.State())
	s.mu.Unlock()

	if !s.cfg.Prime {
		return
	}
	if err := c.Send(context.Background(), trivia.Answer{AnswerIdx: trivia.One}); err != nil {
		s.log.Warn().Err(err).Msg("priming answer not sent")
	}
}

func (s *Session) OnMessage(c *Conn, payload []byte) {
	s.mu.Lock()
	err := s.interp.Handle(context.Background(), payload)
	if err == nil {
		s.mu.Unlock()
		return
	}

	var (
		decodeErr *trivia.DecodeError
		sendErr   *SendError
		closing   bool
	)
	switch {
	case errors.As(err, &decodeErr):
		s.log.Warn().Err(err).Bytes("payload", decodeErr.Payload).Msg("dropping undecodable message")
	case errors.As(err, &sendErr):
		s.log.Error().Err(err).Msg("reply rejected by transport")
		if s.cfg.CloseOnSendError {
			s.sendErr = sendErr
			closing = true
		}
	default:
		s.log.Error().Err(err).Msg("error handling message")
	}
	s.mu.Unlock()

	if closing {
		c.Close()
	}
}

func (s *Session) OnClose(c *Conn) {
	s.log.Info().Msg("session closed")
	s.finish()
}

func (s *Session) OnError(c *Conn, err error) {
	s.log.Error().Err(err).Msg("session lost")
	s.finish()
}

// finish reports the last state, then resets a session that stopped before
// reaching a terminal phase.
func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	s.result = s.interp.State()
	s.publish(s.result)

	if !s.result.Phase.Terminal() {
		s.interp.Reset()
	}
}

// stateChanged runs under s.mu, from inside the interpreter.
func (s *Session) stateChanged(state trivia.State) {
	s.publish(state)
}

func (s *Session) publish(state trivia.State) {
	snap := Snapshot{
		ID:        s.ID,
		Username:  s.Username,
		Connected: s.connected,
		State:     state,
	}
	for _, o := range s.observers {
		o.Observe(snap)
	}
}
