package domain

import (
	"fmt"
	"strings"
	"time"
)

// Action is a host lifecycle command.
type Action string

const (
	ActionStartQuiz    Action = "START_QUIZ"
	ActionNextQuestion Action = "NEXT_QUESTION"
	ActionFinishQuiz   Action = "FINISH_QUIZ"
)

// ParseAction accepts the wire spelling of an action, case-insensitively.
func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(raw))); a {
	case ActionStartQuiz, ActionNextQuestion, ActionFinishQuiz:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, raw)
	}
}

// Effect is what a lifecycle command actually did.
type Effect string

const (
	EffectStarted  Effect = "started"
	EffectAdvanced Effect = "advanced"
	EffectFinished Effect = "finished"
)

// Transition reports the changes applied by a lifecycle command.
type Transition struct {
	Action               Action     `json:"action"`
	Effect               Effect     `json:"effect"`
	State                RoomState  `json:"state"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	QuestionStartedAt    *time.Time `json:"questionStartedAt,omitempty"`
	FinishedAt           *time.Time `json:"finishedAt,omitempty"`
}

// Apply runs action against room at now, mutating room in place.
// The effect depends only on the room state and the action. On error room is untouched.
func Apply(room *Room, action Action, now time.Time) (Effect, error) {
	state := room.State()
	switch action {
	case ActionStartQuiz:
		if state != StateWaiting {
			return "", invalidTransition(action, state)
		}
		if len(room.Questions) == 0 {
			return "", fmt.Errorf("%w: room has no questions", ErrInvalidTransition)
		}
		room.Started = true
		room.CurrentQuestionIndex = 0
		room.StartedAt = timePtr(now)
		room.QuestionStartedAt = timePtr(now)
		return EffectStarted, nil

	case ActionNextQuestion:
		if state != StateActive {
			return "", invalidTransition(action, state)
		}
		if room.CurrentQuestionIndex >= len(room.Questions)-1 {
			finish(room, now)
			return EffectFinished, nil
		}
		room.CurrentQuestionIndex++
		room.QuestionStartedAt = timePtr(now)
		return EffectAdvanced, nil

	case ActionFinishQuiz:
		if state != StateActive {
			return "", invalidTransition(action, state)
		}
		finish(room, now)
		return EffectFinished, nil

	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
}

// NewTransition summarizes room after an applied command.
func NewTransition(action Action, effect Effect, room Room) Transition {
	return Transition{
		Action:               action,
		Effect:               effect,
		State:                room.State(),
		CurrentQuestionIndex: room.CurrentQuestionIndex,
		StartedAt:            room.StartedAt,
		QuestionStartedAt:    room.QuestionStartedAt,
		FinishedAt:           room.FinishedAt,
	}
}

// AuthorizeHost is the capability check shared by every host-only operation.
func AuthorizeHost(room Room, caller Identity) error {
	if caller.PlayerID == "" {
		return ErrUnauthenticated
	}
	if caller.PlayerID != room.HostID {
		return fmt.Errorf("%w: caller is not the host of room %s", ErrForbidden, room.Code)
	}
	return nil
}

// LastActivity is the latest lifecycle timestamp of an active room.
func (r Room) LastActivity() time.Time {
	if r.QuestionStartedAt != nil {
		return *r.QuestionStartedAt
	}
	if r.StartedAt != nil {
		return *r.StartedAt
	}
	return r.CreatedAt
}

func finish(room *Room, now time.Time) {
	room.Finished = true
	room.FinishedAt = timePtr(now)
}

func invalidTransition(action Action, state RoomState) error {
	return fmt.Errorf("%w: %s is not allowed while %s", ErrInvalidTransition, action, state)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
