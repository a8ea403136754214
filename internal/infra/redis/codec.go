package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"quiz-arena/internal/domain"
)

// encodeRoom flattens a room into HSET field/value pairs.
func encodeRoom(room domain.Room) ([]interface{}, error) {
	questions, err := json.Marshal(room.Questions)
	if err != nil {
		return nil, fmt.Errorf("marshal questions: %w", err)
	}
	fields := []interface{}{
		"hostId", room.HostID,
		"questions", string(questions),
		"createdAt", formatTime(room.CreatedAt),
		"playerCount", room.PlayerCount,
	}
	return append(fields, encodeLifecycle(room)...), nil
}

// encodeLifecycle returns only the fields a lifecycle transition may change.
func encodeLifecycle(room domain.Room) []interface{} {
	return []interface{}{
		"currentQuestionIndex", room.CurrentQuestionIndex,
		"started", formatBool(room.Started),
		"finished", formatBool(room.Finished),
		"startedAt", formatTimePtr(room.StartedAt),
		"questionStartedAt", formatTimePtr(room.QuestionStartedAt),
		"finishedAt", formatTimePtr(room.FinishedAt),
	}
}

func decodeRoom(code string, fields map[string]string) (domain.Room, error) {
	room := domain.Room{
		Code:     code,
		HostID:   fields["hostId"],
		Started:  fields["started"] == "1",
		Finished: fields["finished"] == "1",
	}
	if err := json.Unmarshal([]byte(fields["questions"]), &room.Questions); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s questions: %w", code, err)
	}
	var err error
	if room.CurrentQuestionIndex, err = strconv.Atoi(fields["currentQuestionIndex"]); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s index: %w", code, err)
	}
	if room.PlayerCount, err = strconv.Atoi(fields["playerCount"]); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s player count: %w", code, err)
	}

	created, err := parseTime(fields["createdAt"])
	if err != nil {
		return domain.Room{}, err
	}
	room.CreatedAt = derefTime(created)
	if room.StartedAt, err = parseTime(fields["startedAt"]); err != nil {
		return domain.Room{}, err
	}
	if room.QuestionStartedAt, err = parseTime(fields["questionStartedAt"]); err != nil {
		return domain.Room{}, err
	}
	if room.FinishedAt, err = parseTime(fields["finishedAt"]); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func decodePlayer(id, name, score, joined string) (domain.Player, error) {
	points, err := strconv.Atoi(score)
	if err != nil {
		return domain.Player{}, fmt.Errorf("decode player %s score: %w", id, err)
	}
	joinedAt, err := parseTime(joined)
	if err != nil {
		return domain.Player{}, fmt.Errorf("decode player %s: %w", id, err)
	}
	return domain.Player{ID: id, Name: name, Score: points, JoinedAt: derefTime(joinedAt)}, nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return &t, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
