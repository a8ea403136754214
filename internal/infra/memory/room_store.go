package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-arena/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. A single lock makes
// every method atomic, which is enough for tests and single-instance demos.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomRecord
}

type roomRecord struct {
	room        domain.Room
	players     map[string]*domain.Player
	playerOrder []string
	answers     map[string]domain.Answer
	answerOrder []string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*roomRecord)}
}

func (s *RoomStore) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrRoomExists
	}
	room.PlayerCount = 0
	s.rooms[room.Code] = &roomRecord{
		room:    room,
		players: make(map[string]*domain.Player),
		answers: make(map[string]domain.Answer),
	}
	return nil
}

func (s *RoomStore) GetRoom(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return rec.room, nil
}

func (s *RoomStore) UpdateRoom(_ context.Context, code string, fn func(room *domain.Room) error) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	room := rec.room
	if err := fn(&room); err != nil {
		return domain.Room{}, err
	}
	rec.room = room
	return room, nil
}

func (s *RoomStore) AddPlayer(_ context.Context, code string, player domain.Player, maxPlayers int) (domain.Player, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return domain.Player{}, false, domain.ErrRoomNotFound
	}
	if rec.room.Finished {
		return domain.Player{}, false, domain.ErrRoomFinished
	}
	if existing, ok := rec.players[player.ID]; ok {
		if player.Name != "" {
			existing.Name = player.Name
		}
		return *existing, false, nil
	}
	if maxPlayers > 0 && len(rec.players) >= maxPlayers {
		return domain.Player{}, false, domain.ErrRoomFull
	}
	player.Score = 0
	rec.players[player.ID] = &player
	rec.playerOrder = append(rec.playerOrder, player.ID)
	rec.room.PlayerCount++
	return player, true, nil
}

func (s *RoomStore) RecordAnswer(_ context.Context, code string, answer domain.Answer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	if rec.room.Finished {
		return 0, domain.ErrRoomFinished
	}
	player, ok := rec.players[answer.PlayerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	key := answer.Key()
	if _, exists := rec.answers[key]; exists {
		return 0, domain.ErrAlreadyAnswered
	}
	rec.answers[key] = answer
	rec.answerOrder = append(rec.answerOrder, key)
	player.Score += answer.Points
	return player.Score, nil
}

func (s *RoomStore) ListPlayers(_ context.Context, code string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	players := make([]domain.Player, 0, len(rec.playerOrder))
	for _, id := range rec.playerOrder {
		players = append(players, *rec.players[id])
	}
	return players, nil
}

func (s *RoomStore) ListAnswers(_ context.Context, code string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	answers := make([]domain.Answer, 0, len(rec.answerOrder))
	for _, key := range rec.answerOrder {
		answers = append(answers, rec.answers[key])
	}
	return answers, nil
}

func (s *RoomStore) ListIdleRooms(_ context.Context, before time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var codes []string
	for code, rec := range s.rooms {
		if rec.room.State() == domain.StateActive && rec.room.LastActivity().Before(before) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}
