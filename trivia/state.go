package trivia

import "time"

type Phase string

const (
	PhaseIdle               Phase = "Idle"
	PhaseAwaitingGame       Phase = "AwaitingGame"
	PhaseAwaitingQuestion   Phase = "AwaitingQuestion"
	PhaseQuestionActive     Phase = "QuestionActive"
	PhaseAnswerAcknowledged Phase = "AnswerAcknowledged"
	PhaseEnded              Phase = "Ended"
	PhaseNoGameAvailable    Phase = "NoGameAvailable"
)

// Terminal reports whether the phase ends the game for this session.
func (p Phase) Terminal() bool {
	return p == PhaseEnded || p == PhaseNoGameAvailable
}

// State is a participant's belief about the game. Only the fields belonging
// to the message that produced it are set.
type State struct {
	Phase     Phase       `json:"phase"`
	Countdown float64     `json:"countdown,omitempty"`
	Question  *Question   `json:"question,omitempty"`
	Answered  AnswerIndex `json:"answered,omitempty"`
	Ack       *AnswerAck  `json:"ack,omitempty"`
	Score     float64     `json:"score"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CountdownDuration returns the countdown of an AwaitingGame state.
func (s State) CountdownDuration() time.Duration {
	return time.Duration(s.Countdown * float64(time.Second))
}
