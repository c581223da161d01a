package trivia

import (
	"encoding/json"
	"fmt"
)

type CommandType string

const (
	CommandTypeAnswer CommandType = "Answer"
)

// AnswerIndex is a one-based option position. It is encoded on the wire as
// "One", "Two", "Three" or "Four".
type AnswerIndex int

const (
	One AnswerIndex = iota + 1
	Two
	Three
	Four
)

// MaxAnswers is the highest option position a command can name.
const MaxAnswers = int(Four)

var answerNames = [...]string{"", "One", "Two", "Three", "Four"}

// AnswerIndexFromInt converts a one-based option position.
func AnswerIndexFromInt(n int) (AnswerIndex, error) {
	idx := AnswerIndex(n)
	if !idx.Valid() {
		return 0, fmt.Errorf("answer index %d out of range 1-%d", n, MaxAnswers)
	}
	return idx, nil
}

func (a AnswerIndex) Valid() bool { return a >= One && a <= Four }

func (a AnswerIndex) String() string {
	if !a.Valid() {
		return fmt.Sprintf("AnswerIndex(%d)", int(a))
	}
	return answerNames[a]
}

func (a AnswerIndex) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("answer index %d out of range", int(a))
	}
	return []byte(answerNames[a]), nil
}

func (a *AnswerIndex) UnmarshalText(text []byte) error {
	for i := One; i <= Four; i++ {
		if answerNames[i] == string(text) {
			*a = i
			return nil
		}
	}
	return fmt.Errorf("unknown answer index %q", text)
}

// Command is a message sent by the client to the game server.
type Command interface {
	Type() CommandType
	json.Marshaler
}

// Answer submits a choice for the active question.
type Answer struct {
	AnswerIdx AnswerIndex
}

func (Answer) Type() CommandType { return CommandTypeAnswer }

func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      CommandType `json:"type"`
		AnswerIdx AnswerIndex `json:"answer_idx"`
	}{
		Type:      CommandTypeAnswer,
		AnswerIdx: a.AnswerIdx,
	})
}
