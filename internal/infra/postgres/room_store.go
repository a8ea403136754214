package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-arena/internal/domain"

	"github.com/uptrace/bun"
)

// RoomStore keeps rooms in Postgres. Lifecycle updates lock the room row FOR UPDATE;
// answers rely on the (room_code, player_id, question_index) primary key for create-if-absent.
type RoomStore struct {
	db *bun.DB
}

func NewRoomStore(db *bun.DB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) CreateRoom(ctx context.Context, room domain.Room) error {
	room.PlayerCount = 0
	res, err := s.db.NewInsert().Model(newRoomRow(room)).On("CONFLICT (code) DO NOTHING").Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRoomExists
	}
	return nil
}

func (s *RoomStore) GetRoom(ctx context.Context, code string) (domain.Room, error) {
	row := new(roomRow)
	if err := s.db.NewSelect().Model(row).Where("code = ?", code).Scan(ctx); err != nil {
		return domain.Room{}, translate(err)
	}
	return row.toDomain(), nil
}

func (s *RoomStore) UpdateRoom(ctx context.Context, code string, fn func(room *domain.Room) error) (domain.Room, error) {
	var updated domain.Room
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		row := new(roomRow)
		if err := tx.NewSelect().Model(row).Where("code = ?", code).For("UPDATE").Scan(ctx); err != nil {
			return err
		}
		room := row.toDomain()
		if err := fn(&room); err != nil {
			return err
		}
		_, err := tx.NewUpdate().Model(newRoomRow(room)).
			Column("current_question_index", "started", "finished", "started_at", "question_started_at", "finished_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		updated = room
		return nil
	})
	return updated, err
}

func (s *RoomStore) AddPlayer(ctx context.Context, code string, player domain.Player, maxPlayers int) (domain.Player, bool, error) {
	var (
		stored  domain.Player
		created bool
	)
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		room := new(roomRow)
		// the row lock serializes joins so the capacity count below is authoritative
		if err := tx.NewSelect().Model(room).Where("code = ?", code).For("UPDATE").Scan(ctx); err != nil {
			return err
		}
		if room.Finished {
			return domain.ErrRoomFinished
		}

		existing := new(playerRow)
		err := tx.NewSelect().Model(existing).Where("room_code = ? AND id = ?", code, player.ID).Scan(ctx)
		if err == nil {
			if player.Name != "" && player.Name != existing.Name {
				existing.Name = player.Name
				if _, err := tx.NewUpdate().Model(existing).Column("name").WherePK().Exec(ctx); err != nil {
					return err
				}
			}
			stored = existing.toDomain()
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if maxPlayers > 0 {
			count, err := tx.NewSelect().Model((*playerRow)(nil)).Where("room_code = ?", code).Count(ctx)
			if err != nil {
				return err
			}
			if count >= maxPlayers {
				return domain.ErrRoomFull
			}
		}
		row := &playerRow{RoomCode: code, ID: player.ID, Name: player.Name, JoinedAt: player.JoinedAt}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model((*roomRow)(nil)).
			Set("player_count = player_count + 1").
			Where("code = ?", code).
			Exec(ctx); err != nil {
			return err
		}
		stored, created = row.toDomain(), true
		return nil
	})
	return stored, created, err
}

func (s *RoomStore) RecordAnswer(ctx context.Context, code string, answer domain.Answer) (int, error) {
	var score int
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		room := new(roomRow)
		// FOR SHARE conflicts with the FOR UPDATE taken by lifecycle transitions,
		// so a submission cannot commit after a concurrent finish.
		if err := tx.NewSelect().Model(room).Column("code", "finished").Where("code = ?", code).For("SHARE").Scan(ctx); err != nil {
			return err
		}
		if room.Finished {
			return domain.ErrRoomFinished
		}

		exists, err := tx.NewSelect().Model((*playerRow)(nil)).Where("room_code = ? AND id = ?", code, answer.PlayerID).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrPlayerNotFound
		}

		res, err := tx.NewInsert().Model(&answerRow{
			RoomCode:      code,
			PlayerID:      answer.PlayerID,
			QuestionIndex: answer.QuestionIndex,
			AnswerIndex:   answer.AnswerIndex,
			Correct:       answer.Correct,
			Points:        answer.Points,
			SubmittedAt:   answer.SubmittedAt,
		}).On("CONFLICT DO NOTHING").Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrAlreadyAnswered
		}

		return tx.NewUpdate().Model((*playerRow)(nil)).
			Set("score = score + ?", answer.Points).
			Where("room_code = ? AND id = ?", code, answer.PlayerID).
			Returning("score").
			Scan(ctx, &score)
	})
	return score, err
}

func (s *RoomStore) ListPlayers(ctx context.Context, code string) ([]domain.Player, error) {
	if err := s.ensureRoom(ctx, code); err != nil {
		return nil, err
	}
	var rows []playerRow
	if err := s.db.NewSelect().Model(&rows).Where("room_code = ?", code).Order("seq ASC").Scan(ctx); err != nil {
		return nil, translate(err)
	}
	players := make([]domain.Player, 0, len(rows))
	for i := range rows {
		players = append(players, rows[i].toDomain())
	}
	return players, nil
}

func (s *RoomStore) ListAnswers(ctx context.Context, code string) ([]domain.Answer, error) {
	if err := s.ensureRoom(ctx, code); err != nil {
		return nil, err
	}
	var rows []answerRow
	if err := s.db.NewSelect().Model(&rows).Where("room_code = ?", code).Order("submitted_at ASC", "player_id ASC", "question_index ASC").Scan(ctx); err != nil {
		return nil, translate(err)
	}
	answers := make([]domain.Answer, 0, len(rows))
	for i := range rows {
		answers = append(answers, rows[i].toDomain())
	}
	return answers, nil
}

func (s *RoomStore) ListIdleRooms(ctx context.Context, before time.Time) ([]string, error) {
	var codes []string
	err := s.db.NewSelect().Model((*roomRow)(nil)).
		Column("code").
		Where("started AND NOT finished").
		Where("COALESCE(question_started_at, started_at) < ?", before).
		Order("code ASC").
		Scan(ctx, &codes)
	if err != nil {
		return nil, translate(err)
	}
	return codes, nil
}

func (s *RoomStore) ensureRoom(ctx context.Context, code string) error {
	exists, err := s.db.NewSelect().Model((*roomRow)(nil)).Where("code = ?", code).Exists(ctx)
	if err != nil {
		return translate(err)
	}
	if !exists {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) inTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return translate(s.db.RunInTx(ctx, nil, fn))
}

// translate maps driver errors onto the domain taxonomy. Domain errors pass through.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrRoomNotFound
	case isDomainErr(err):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}

func isDomainErr(err error) bool {
	for _, target := range []error{
		domain.ErrRoomNotFound,
		domain.ErrRoomExists,
		domain.ErrRoomFinished,
		domain.ErrRoomFull,
		domain.ErrPlayerNotFound,
		domain.ErrAlreadyAnswered,
		domain.ErrForbidden,
		domain.ErrUnauthenticated,
		domain.ErrInvalidInput,
		domain.ErrInvalidTransition,
		domain.ErrStoreUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
