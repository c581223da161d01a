package player

import (
	"context"
	"fmt"
	"time"

	"github.com/dylanconnolly/segon-client/trivia"
	"github.com/rs/zerolog"
)

// Sender transmits outbound commands. client.Conn implements it.
type Sender interface {
	Send(ctx context.Context, cmd trivia.Command) error
}

// Observer is notified after every state transition, once any reply for
// the new state has been sent.
type Observer interface {
	StateChanged(state trivia.State)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(state trivia.State)

func (f ObserverFunc) StateChanged(state trivia.State) { f(state) }

// Interpreter turns inbound frames into phase transitions and replies for a
// single participant. It is not safe for concurrent use; the connection
// delivers frames one at a time.
type Interpreter struct {
	state     trivia.State
	strategy  Strategy
	sender    Sender
	observers []Observer
	log       zerolog.Logger
	now       func() time.Time
}

type Option func(*Interpreter)

func WithObserver(o Observer) Option {
	return func(i *Interpreter) { i.observers = append(i.observers, o) }
}

func WithLogger(log zerolog.Logger) Option {
	return func(i *Interpreter) { i.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(i *Interpreter) { i.now = now }
}

func New(strategy Strategy, sender Sender, opts ...Option) *Interpreter {
	i := &Interpreter{
		strategy: strategy,
		sender:   sender,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.state = trivia.State{Phase: trivia.PhaseIdle, UpdatedAt: i.now()}

	return i
}

// State returns a copy of the current state.
func (i *Interpreter) State() trivia.State {
	return i.state
}

// Handle decodes one inbound frame, advances the state and sends the reply
// the new state requires. A *trivia.DecodeError leaves the state unchanged.
func (i *Interpreter) Handle(ctx context.Context, payload []byte) error {
	ev, err := trivia.Decode(payload)
	if err != nil {
		return err
	}

	return i.Apply(ctx, ev)
}

// Apply advances the state for an already decoded event. The transition
// depends only on the event, never on the previous phase.
func (i *Interpreter) Apply(ctx context.Context, ev trivia.Event) error {
	next := trivia.State{UpdatedAt: i.now()}
	var reply trivia.Command

	switch e := ev.(type) {
	case trivia.TimeTillGame:
		next.Phase = trivia.PhaseAwaitingGame
		next.Countdown = e.Time
	case trivia.GameStart:
		next.Phase = trivia.PhaseAwaitingQuestion
	case trivia.Question:
		next.Phase = trivia.PhaseQuestionActive
		q := e
		next.Question = &q
	case trivia.AnswerAck:
		next.Phase = trivia.PhaseAnswerAcknowledged
		ack := e
		next.Ack = &ack
	case trivia.NoGame:
		next.Phase = trivia.PhaseNoGameAvailable
	case trivia.GameEnd:
		next.Phase = trivia.PhaseEnded
		next.Score = e.Score
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}

	if q, ok := ev.(trivia.Question); ok {
		idx, err := i.choose(ctx, q)
		if err != nil {
			i.set(next)
			i.notify(next)
			return err
		}
		next.Answered = idx
		reply = trivia.Answer{AnswerIdx: idx}
	}

	// observers run after the reply is on the wire
	i.set(next)
	err := i.reply(ctx, reply, next.Answered)
	i.notify(next)

	return err
}

func (i *Interpreter) reply(ctx context.Context, cmd trivia.Command, idx trivia.AnswerIndex) error {
	if cmd == nil {
		return nil
	}
	if err := i.sender.Send(ctx, cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Type(), err)
	}
	i.log.Debug().Stringer("answer_idx", idx).Msg("answer sent")

	return nil
}

// Reset returns the interpreter to Idle, e.g. after the connection closed.
func (i *Interpreter) Reset() {
	idle := trivia.State{Phase: trivia.PhaseIdle, UpdatedAt: i.now()}
	i.set(idle)
	i.notify(idle)
}

func (i *Interpreter) choose(ctx context.Context, q trivia.Question) (trivia.AnswerIndex, error) {
	n, err := i.strategy.ChooseAnswer(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("choose answer: %w", err)
	}
	if n < 1 || n > q.Answerable() {
		return 0, fmt.Errorf("%w: %d of %d answerable options", ErrInvalidChoice, n, q.Answerable())
	}

	return trivia.AnswerIndexFromInt(n)
}

func (i *Interpreter) set(next trivia.State) {
	prev := i.state.Phase
	i.state = next

	i.log.Debug().
		Str("from", string(prev)).
		Str("to", string(next.Phase)).
		Msg("phase transition")
}

func (i *Interpreter) notify(state trivia.State) {
	for _, o := range i.observers {
		o.StateChanged(state)
	}
}
