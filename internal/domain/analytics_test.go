package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	room := activeRoom(3, 2)
	now := time.Now()
	players := []Player{
		{ID: "p1", Name: "Alice", Score: 10},
		{ID: "p2", Name: "Bob", Score: 20},
		{ID: "p3", Name: "Cara", Score: 10},
		{ID: "p4", Name: "Dan"},
	}
	answers := []Answer{
		{PlayerID: "p1", QuestionIndex: 0, Correct: true, Points: 10, SubmittedAt: now},
		{PlayerID: "p1", QuestionIndex: 1, Correct: false, SubmittedAt: now},
		{PlayerID: "p2", QuestionIndex: 0, Correct: true, Points: 10, SubmittedAt: now},
		{PlayerID: "p2", QuestionIndex: 1, Correct: true, Points: 10, SubmittedAt: now},
		{PlayerID: "p3", QuestionIndex: 0, Correct: true, Points: 10, SubmittedAt: now},
		{PlayerID: "p3", QuestionIndex: 1, Correct: false, SubmittedAt: now},
		{PlayerID: "p3", QuestionIndex: 2, Correct: false, SubmittedAt: now},
	}

	report := Aggregate(room, players, answers)

	require.Len(t, report.PlayerStats, 4)
	order := []string{}
	for _, st := range report.PlayerStats {
		order = append(order, st.PlayerID)
	}
	assert.Equal(t, []string{"p2", "p1", "p3", "p4"}, order, "score desc, ties keep join order")

	assert.Equal(t, 0.5, report.PlayerStats[1].Accuracy)
	assert.Equal(t, 0.3, report.PlayerStats[2].Accuracy)
	assert.Equal(t, 0.0, report.PlayerStats[3].Accuracy)

	sumCorrect := 0
	for _, st := range report.PlayerStats {
		sumCorrect += st.CorrectAnswers
	}
	assert.Equal(t, 4, sumCorrect)
	assert.Equal(t, 4, report.Summary.CorrectAnswers)
	assert.Equal(t, 7, report.Summary.TotalAnswers)
	assert.Equal(t, 10.0, report.Summary.AverageScore)
	assert.Equal(t, 0.6, report.Summary.OverallAccuracy)
	assert.Equal(t, 3, report.Room.QuestionCount)
}

func TestAggregateEmptyRoom(t *testing.T) {
	report := Aggregate(sampleRoom(1), nil, nil)
	assert.Empty(t, report.PlayerStats)
	assert.Equal(t, 0.0, report.Summary.AverageScore)
	assert.Equal(t, 0.0, report.Summary.OverallAccuracy)
}
