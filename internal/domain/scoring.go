package domain

import "fmt"

// DefaultPoints is the reward for a correct answer.
const DefaultPoints = 10

// CheckSubmission validates a submission against the room as last read.
// The finished flag is re-checked atomically by the store when the answer is recorded.
func CheckSubmission(room Room, sub AnswerSubmission) error {
	if sub.QuestionIndex < 0 || sub.QuestionIndex >= len(room.Questions) {
		return fmt.Errorf("%w: question index %d out of range", ErrInvalidInput, sub.QuestionIndex)
	}
	if sub.AnswerIndex < 0 || sub.AnswerIndex >= OptionCount {
		return fmt.Errorf("%w: answer index %d out of range", ErrInvalidInput, sub.AnswerIndex)
	}
	if room.Finished {
		return ErrRoomFinished
	}
	if sub.QuestionIndex > room.CurrentQuestionIndex {
		return fmt.Errorf("%w: question %d is not open yet", ErrInvalidInput, sub.QuestionIndex)
	}
	return nil
}

// Score grades answerIndex against q. Points is reward when correct, otherwise 0.
func Score(q Question, answerIndex, reward int) (bool, int) {
	if answerIndex == q.CorrectIndex {
		return true, reward
	}
	return false, 0
}

// CorrectText returns the text of the correct option.
func (q Question) CorrectText() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}
