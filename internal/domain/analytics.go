package domain

import (
	"math"
	"sort"
	"time"
)

// RoomInfo is the room header of an analytics report.
type RoomInfo struct {
	Code                 string     `json:"code"`
	HostID               string     `json:"hostId"`
	State                RoomState  `json:"state"`
	QuestionCount        int        `json:"questionCount"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	FinishedAt           *time.Time `json:"finishedAt,omitempty"`
}

// PlayerStats is one leaderboard row.
type PlayerStats struct {
	PlayerID       string  `json:"playerId"`
	Name           string  `json:"name"`
	Score          int     `json:"score"`
	CorrectAnswers int     `json:"correctAnswers"`
	TotalAnswers   int     `json:"totalAnswers"`
	Accuracy       float64 `json:"accuracy"`
}

// Summary holds room-wide figures.
type Summary struct {
	PlayerCount     int     `json:"playerCount"`
	TotalAnswers    int     `json:"totalAnswers"`
	CorrectAnswers  int     `json:"correctAnswers"`
	AverageScore    float64 `json:"averageScore"`
	OverallAccuracy float64 `json:"overallAccuracy"`
}

// Analytics is the host report for a room.
type Analytics struct {
	Room        RoomInfo      `json:"roomInfo"`
	PlayerStats []PlayerStats `json:"playerStats"`
	Summary     Summary       `json:"summary"`
}

// Aggregate computes the report. players must be in join order, which is kept for ties.
func Aggregate(room Room, players []Player, answers []Answer) Analytics {
	type tally struct{ correct, total int }
	perPlayer := make(map[string]*tally, len(players))
	totalCorrect := 0
	for _, a := range answers {
		t, ok := perPlayer[a.PlayerID]
		if !ok {
			t = &tally{}
			perPlayer[a.PlayerID] = t
		}
		t.total++
		if a.Correct {
			t.correct++
			totalCorrect++
		}
	}

	stats := make([]PlayerStats, 0, len(players))
	scoreSum := 0
	for _, p := range players {
		st := PlayerStats{PlayerID: p.ID, Name: p.Name, Score: p.Score}
		if t, ok := perPlayer[p.ID]; ok {
			st.CorrectAnswers = t.correct
			st.TotalAnswers = t.total
		}
		st.Accuracy = Round1(ratio(st.CorrectAnswers, st.TotalAnswers))
		scoreSum += p.Score
		stats = append(stats, st)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Score > stats[j].Score
	})

	return Analytics{
		Room: RoomInfo{
			Code:                 room.Code,
			HostID:               room.HostID,
			State:                room.State(),
			QuestionCount:        len(room.Questions),
			CurrentQuestionIndex: room.CurrentQuestionIndex,
			StartedAt:            room.StartedAt,
			FinishedAt:           room.FinishedAt,
		},
		PlayerStats: stats,
		Summary: Summary{
			PlayerCount:     len(players),
			TotalAnswers:    len(answers),
			CorrectAnswers:  totalCorrect,
			AverageScore:    Round1(ratio(scoreSum, len(players))),
			OverallAccuracy: Round1(ratio(totalCorrect, len(answers))),
		},
	}
}

// Round1 rounds to one decimal place for display.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
