package app

import (
	"context"
	"time"

	"quiz-arena/internal/domain"
)

// RoomStore abstracts the room document store (in-memory, Redis, Postgres).
// Every method is atomic with respect to the room it touches.
type RoomStore interface {
	// CreateRoom writes a new room without players. It fails with
	// domain.ErrRoomExists if the code is taken.
	CreateRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, code string) (domain.Room, error)
	// UpdateRoom reads the room and applies fn inside one atomic unit.
	// If fn returns an error nothing is written.
	UpdateRoom(ctx context.Context, code string, fn func(room *domain.Room) error) (domain.Room, error)
	// AddPlayer creates the player if absent, enforcing maxPlayers (0 = unlimited)
	// against the player collection. An existing player keeps its score.
	AddPlayer(ctx context.Context, code string, player domain.Player, maxPlayers int) (domain.Player, bool, error)
	// RecordAnswer creates the answer if absent and increments the player's score by
	// answer.Points in one atomic unit, rejecting finished rooms. It returns the new score.
	RecordAnswer(ctx context.Context, code string, answer domain.Answer) (int, error)
	// ListPlayers returns players in join order.
	ListPlayers(ctx context.Context, code string) ([]domain.Player, error)
	ListAnswers(ctx context.Context, code string) ([]domain.Answer, error)
	// ListIdleRooms returns codes of active rooms with no lifecycle activity since before.
	ListIdleRooms(ctx context.Context, before time.Time) ([]string, error)
}

// QuestionSetRepository loads pre-generated question sets (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error)
}

// EventBus fans room events out to live subscribers.
type EventBus interface {
	Publish(ctx context.Context, event domain.RoomEvent) error
	// Subscribe returns a channel of events for a room. The caller must invoke
	// the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, code string) (<-chan domain.RoomEvent, func(), error)
}
