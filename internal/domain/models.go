package domain

import (
	"fmt"
	"time"
)

// OptionCount is the number of options every question carries.
const OptionCount = 4

// Question is a single multiple-choice question with a zero-based correct option.
type Question struct {
	Prompt       string   `json:"prompt" yaml:"prompt"`
	Options      []string `json:"options" yaml:"options"`
	CorrectIndex int      `json:"correctIndex" yaml:"correctIndex"`
}

// Validate checks the question shape.
func (q Question) Validate() error {
	if q.Prompt == "" {
		return fmt.Errorf("%w: question prompt is empty", ErrInvalidInput)
	}
	if len(q.Options) != OptionCount {
		return fmt.Errorf("%w: question needs %d options, got %d", ErrInvalidInput, OptionCount, len(q.Options))
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount {
		return fmt.Errorf("%w: correct option index out of range", ErrInvalidInput)
	}
	return nil
}

// QuestionSet is a pre-generated ordered list of questions.
type QuestionSet struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// RoomState is the derived lifecycle state of a room.
type RoomState string

const (
	StateWaiting  RoomState = "waiting"
	StateActive   RoomState = "active"
	StateFinished RoomState = "finished"
)

// Room is one multiplayer quiz session.
type Room struct {
	Code                 string     `json:"code"`
	HostID               string     `json:"hostId"`
	Questions            []Question `json:"questions"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	Started              bool       `json:"started"`
	Finished             bool       `json:"finished"`
	CreatedAt            time.Time  `json:"createdAt"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	QuestionStartedAt    *time.Time `json:"questionStartedAt,omitempty"`
	FinishedAt           *time.Time `json:"finishedAt,omitempty"`
	PlayerCount          int        `json:"playerCount"`
}

// NewRoom builds a room in the waiting state.
func NewRoom(code, hostID string, questions []Question, now time.Time) Room {
	return Room{
		Code:                 code,
		HostID:               hostID,
		Questions:            questions,
		CurrentQuestionIndex: -1,
		CreatedAt:            now,
	}
}

// State derives the lifecycle state from the started/finished flags.
func (r Room) State() RoomState {
	switch {
	case r.Finished:
		return StateFinished
	case r.Started:
		return StateActive
	default:
		return StateWaiting
	}
}

// Player is a participant of a room.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Answer is the scored record of one player's answer to one question.
type Answer struct {
	PlayerID      string    `json:"playerId"`
	QuestionIndex int       `json:"questionIndex"`
	AnswerIndex   int       `json:"answerIndex"`
	Correct       bool      `json:"correct"`
	Points        int       `json:"points"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Key returns the idempotency key of the answer.
func (a Answer) Key() string {
	return AnswerKey(a.PlayerID, a.QuestionIndex)
}

// AnswerKey builds the composite (player, question) key.
func AnswerKey(playerID string, questionIndex int) string {
	return fmt.Sprintf("%s_%d", playerID, questionIndex)
}

// Identity is a verified caller.
type Identity struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// Validation reasons.
const (
	ReasonNotFound = "not found"
	ReasonFinished = "quiz finished"
	ReasonFull     = "room full"
)

// Validation is the Validation Gate outcome.
type Validation struct {
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason,omitempty"`
	Started       bool   `json:"started"`
	PlayerCount   int    `json:"playerCount"`
	QuestionCount int    `json:"questionCount"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionIndex int
	AnswerIndex   int
	SubmittedAt   time.Time
}

// AnswerResult summarizes the outcome of a submission.
type AnswerResult struct {
	QuestionIndex     int    `json:"questionIndex"`
	Correct           bool   `json:"correct"`
	Points            int    `json:"points"`
	CorrectAnswerText string `json:"correctAnswerText"`
	TotalScore        int    `json:"totalScore"`
}

// EventType names live feed events.
type EventType string

const (
	EventRoomCreated    EventType = "roomCreated"
	EventPlayerJoined   EventType = "playerJoined"
	EventQuizStarted    EventType = "quizStarted"
	EventQuestionOpened EventType = "questionOpened"
	EventQuizFinished   EventType = "quizFinished"
	EventAnswerScored   EventType = "answerScored"
)

// RoomEvent is published after every successful state change. It never carries correct answers.
type RoomEvent struct {
	Type                 EventType `json:"type"`
	Code                 string    `json:"code"`
	State                RoomState `json:"state"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	QuestionCount        int       `json:"questionCount"`
	PlayerCount          int       `json:"playerCount"`
	PlayerID             string    `json:"playerId,omitempty"`
	PlayerName           string    `json:"playerName,omitempty"`
	Score                int       `json:"score,omitempty"`
	At                   time.Time `json:"at"`
}

// NewRoomEvent snapshots the public room fields.
func NewRoomEvent(typ EventType, room Room, at time.Time) RoomEvent {
	return RoomEvent{
		Type:                 typ,
		Code:                 room.Code,
		State:                room.State(),
		CurrentQuestionIndex: room.CurrentQuestionIndex,
		QuestionCount:        len(room.Questions),
		PlayerCount:          room.PlayerCount,
		At:                   at,
	}
}
