package postgres

import (
	"time"

	"quiz-arena/internal/domain"

	"github.com/uptrace/bun"
)

type roomRow struct {
	bun.BaseModel `bun:"table:rooms"`

	Code                 string            `bun:"code,pk"`
	HostID               string            `bun:"host_id"`
	Questions            []domain.Question `bun:"questions,type:jsonb"`
	CurrentQuestionIndex int               `bun:"current_question_index"`
	Started              bool              `bun:"started"`
	Finished             bool              `bun:"finished"`
	CreatedAt            time.Time         `bun:"created_at"`
	StartedAt            *time.Time        `bun:"started_at"`
	QuestionStartedAt    *time.Time        `bun:"question_started_at"`
	FinishedAt           *time.Time        `bun:"finished_at"`
	PlayerCount          int               `bun:"player_count"`
}

func newRoomRow(r domain.Room) *roomRow {
	return &roomRow{
		Code:                 r.Code,
		HostID:               r.HostID,
		Questions:            r.Questions,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		Started:              r.Started,
		Finished:             r.Finished,
		CreatedAt:            r.CreatedAt,
		StartedAt:            r.StartedAt,
		QuestionStartedAt:    r.QuestionStartedAt,
		FinishedAt:           r.FinishedAt,
		PlayerCount:          r.PlayerCount,
	}
}

func (r *roomRow) toDomain() domain.Room {
	return domain.Room{
		Code:                 r.Code,
		HostID:               r.HostID,
		Questions:            r.Questions,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		Started:              r.Started,
		Finished:             r.Finished,
		CreatedAt:            r.CreatedAt,
		StartedAt:            r.StartedAt,
		QuestionStartedAt:    r.QuestionStartedAt,
		FinishedAt:           r.FinishedAt,
		PlayerCount:          r.PlayerCount,
	}
}

type playerRow struct {
	bun.BaseModel `bun:"table:players"`

	RoomCode string    `bun:"room_code,pk"`
	ID       string    `bun:"id,pk"`
	Name     string    `bun:"name"`
	Score    int       `bun:"score"`
	Seq      int64     `bun:"seq,scanonly"`
	JoinedAt time.Time `bun:"joined_at"`
}

func (p *playerRow) toDomain() domain.Player {
	return domain.Player{ID: p.ID, Name: p.Name, Score: p.Score, JoinedAt: p.JoinedAt}
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	RoomCode      string    `bun:"room_code,pk"`
	PlayerID      string    `bun:"player_id,pk"`
	QuestionIndex int       `bun:"question_index,pk"`
	AnswerIndex   int       `bun:"answer_index"`
	Correct       bool      `bun:"correct"`
	Points        int       `bun:"points"`
	SubmittedAt   time.Time `bun:"submitted_at"`
}

func (a *answerRow) toDomain() domain.Answer {
	return domain.Answer{
		PlayerID:      a.PlayerID,
		QuestionIndex: a.QuestionIndex,
		AnswerIndex:   a.AnswerIndex,
		Correct:       a.Correct,
		Points:        a.Points,
		SubmittedAt:   a.SubmittedAt,
	}
}
