package trivia

import (
	"encoding/json"
	"errors"
	"fmt"
)

type EventType string

const (
	EventTypeTimeTillGame EventType = "TimeTillGame"
	EventTypeQuestion     EventType = "Question"
	EventTypeAnswer       EventType = "Answer"
	EventTypeNoGame       EventType = "NoGame"
	EventTypeGameStart    EventType = "GameStart"
	EventTypeGameEnd      EventType = "GameEnd"
)

var (
	ErrMalformed     = errors.New("malformed payload")
	ErrUnknownType   = errors.New("unknown message type")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidOption = errors.New("invalid options")
)

// DecodeError reports an inbound frame that does not match any known message
// shape. The frame should be dropped and the session kept alive.
type DecodeError struct {
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %s", truncate(e.Payload, 64), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Event is a message sent by the game server. The set of implementations is
// closed: TimeTillGame, Question, AnswerAck, NoGame, GameStart and GameEnd.
type Event interface {
	Type() EventType
	isEvent()
}

// TimeTillGame is the countdown before the next game starts.
type TimeTillGame struct {
	Time float64 `json:"time"`
}

// Question is a live question. Options are kept in server order; option i is
// answered with AnswerIndex(i+1).
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Answerable is the number of leading options that can be named by an
// AnswerIndex. Options past Four are kept but cannot be chosen.
func (q Question) Answerable() int {
	return min(len(q.Options), MaxAnswers)
}

// AnswerAck acknowledges a previously submitted answer.
type AnswerAck struct {
	Status    string      `json:"status"`
	AnswerIdx AnswerIndex `json:"answer_idx"`
}

type NoGame struct{}

type GameStart struct{}

// GameEnd carries the participant's final score.
type GameEnd struct {
	Score float64 `json:"score"`
}

func (TimeTillGame) Type() EventType { return EventTypeTimeTillGame }
func (Question) Type() EventType     { return EventTypeQuestion }
func (AnswerAck) Type() EventType    { return EventTypeAnswer }
func (NoGame) Type() EventType       { return EventTypeNoGame }
func (GameStart) Type() EventType    { return EventTypeGameStart }
func (GameEnd) Type() EventType      { return EventTypeGameEnd }

func (TimeTillGame) isEvent() {}
func (Question) isEvent()     {}
func (AnswerAck) isEvent()    {}
func (NoGame) isEvent()       {}
func (GameStart) isEvent()    {}
func (GameEnd) isEvent()      {}

// Decode parses a single inbound frame. Any failure is returned as a
// *DecodeError.
func Decode(payload []byte) (Event, error) {
	ev, err := decode(payload)
	if err != nil {
		return nil, &DecodeError{Payload: payload, Err: err}
	}
	return ev, nil
}

// fields holds the top-level members of a frame by exact key. Lookups are
// case-sensitive, unlike decoding straight into a struct.
type fields map[string]json.RawMessage

func (f fields) require(key string, v any) error {
	raw, ok := f[key]
	if !ok || string(raw) == "null" {
		return fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrMalformed, key, err)
	}
	return nil
}

func decode(payload []byte) (Event, error) {
	var f fields
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	var typ EventType
	if err := f.require("type", &typ); err != nil {
		return nil, err
	}

	switch typ {
	case EventTypeTimeTillGame:
		var ev TimeTillGame
		if err := f.require("time", &ev.Time); err != nil {
			return nil, err
		}
		return ev, nil

	case EventTypeQuestion:
		var ev Question
		if err := f.require("question", &ev.Question); err != nil {
			return nil, err
		}
		if err := f.require("options", &ev.Options); err != nil {
			return nil, err
		}
		if len(ev.Options) == 0 {
			return nil, fmt.Errorf("%w: no options", ErrInvalidOption)
		}
		return ev, nil

	case EventTypeAnswer:
		var ev AnswerAck
		if err := f.require("status", &ev.Status); err != nil {
			return nil, err
		}
		if err := f.require("answer_idx", &ev.AnswerIdx); err != nil {
			return nil, err
		}
		return ev, nil

	case EventTypeNoGame:
		return NoGame{}, nil

	case EventTypeGameStart:
		return GameStart{}, nil

	case EventTypeGameEnd:
		var ev GameEnd
		if err := f.require("score", &ev.Score); err != nil {
			return nil, err
		}
		return ev, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
