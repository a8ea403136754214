package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-arena/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const createAttempts = 5

// Options tune the arena rules.
type Options struct {
	PointsPerQuestion int
	MaxPlayers        int
	CodeLength        int
	StoreTimeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.PointsPerQuestion <= 0 {
		o.PointsPerQuestion = domain.DefaultPoints
	}
	if o.CodeLength <= 0 {
		o.CodeLength = domain.DefaultCodeLength
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	return o
}

// ArenaService contains the multiplayer quiz use cases. It holds no per-room state;
// all shared state lives in the RoomStore.
type ArenaService struct {
	rooms        RoomStore
	questionSets QuestionSetRepository
	events       EventBus
	logger       *zap.Logger
	opts         Options
	now          func() time.Time
}

func NewArenaService(rooms RoomStore, questionSets QuestionSetRepository, events EventBus, logger *zap.Logger, opts Options) *ArenaService {
	return NewArenaServiceWithClock(rooms, questionSets, events, logger, opts, time.Now)
}

// NewArenaServiceWithClock is used by tests for deterministic timestamps.
func NewArenaServiceWithClock(rooms RoomStore, questionSets QuestionSetRepository, events EventBus, logger *zap.Logger, opts Options, now func() time.Time) *ArenaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArenaService{
		rooms:        rooms,
		questionSets: questionSets,
		events:       events,
		logger:       logger,
		opts:         opts.withDefaults(),
		now:          now,
	}
}

// CreateRoomRequest carries either inline questions or a question set id.
type CreateRoomRequest struct {
	Questions     []domain.Question
	QuestionSetID string
}

// CreateRoom writes a waiting room hosted by caller. The host only becomes a scoring
// player by joining like everyone else.
func (s *ArenaService) CreateRoom(ctx context.Context, caller domain.Identity, req CreateRoomRequest) (domain.Room, error) {
	if caller.PlayerID == "" {
		return domain.Room{}, domain.ErrUnauthenticated
	}
	questions := req.Questions
	if len(questions) == 0 && req.QuestionSetID != "" {
		set, err := s.questionSets.GetQuestionSet(ctx, req.QuestionSetID)
		if err != nil {
			return domain.Room{}, err
		}
		questions = set.Questions
	}
	if len(questions) == 0 {
		return domain.Room{}, fmt.Errorf("%w: a room needs at least one question", domain.ErrInvalidInput)
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return domain.Room{}, fmt.Errorf("question %d: %w", i, err)
		}
	}

	now := s.now()
	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := domain.GenerateCode(s.opts.CodeLength)
		if err != nil {
			return domain.Room{}, err
		}
		room := domain.NewRoom(code, caller.PlayerID, questions, now)

		err = s.call(ctx, func(ctx context.Context) error {
			return s.rooms.CreateRoom(ctx, room)
		})
		if errors.Is(err, domain.ErrRoomExists) {
			continue
		}
		if err != nil {
			s.logger.Error("create room failed", zap.String("host", caller.PlayerID), zap.Error(err))
			return domain.Room{}, err
		}
		s.logger.Info("room created", zap.String("room", code), zap.String("host", caller.PlayerID), zap.Int("questions", len(questions)))
		s.publish(ctx, domain.NewRoomEvent(domain.EventRoomCreated, room, now))
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("%w: could not allocate a unique room code", domain.ErrStoreUnavailable)
}

// ValidateRoom is the pre-join gate. It is a pure read.
func (s *ArenaService) ValidateRoom(ctx context.Context, code string) (domain.Validation, error) {
	room, err := s.getRoom(ctx, code)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return domain.Validation{Valid: false, Reason: domain.ReasonNotFound}, nil
	}
	if err != nil {
		return domain.Validation{}, err
	}
	if room.Finished {
		return domain.Validation{Valid: false, Reason: domain.ReasonFinished}, nil
	}
	v := domain.Validation{
		Valid:         true,
		Started:       room.Started,
		PlayerCount:   room.PlayerCount,
		QuestionCount: len(room.Questions),
	}
	if s.opts.MaxPlayers > 0 && room.PlayerCount >= s.opts.MaxPlayers {
		v.Valid = false
		v.Reason = domain.ReasonFull
	}
	return v, nil
}

// JoinRoom adds caller to the room, or refreshes their name if already present.
func (s *ArenaService) JoinRoom(ctx context.Context, code string, caller domain.Identity) (domain.Player, error) {
	if caller.PlayerID == "" {
		return domain.Player{}, domain.ErrUnauthenticated
	}
	code = domain.NormalizeCode(code)
	now := s.now()

	var (
		player  domain.Player
		created bool
	)
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		player, created, err = s.rooms.AddPlayer(ctx, code, domain.Player{ID: caller.PlayerID, Name: caller.Name, JoinedAt: now}, s.opts.MaxPlayers)
		return err
	})
	if err != nil {
		return domain.Player{}, err
	}
	if created {
		s.logger.Info("player joined", zap.String("room", code), zap.String("player", caller.PlayerID))
		if room, err := s.getRoom(ctx, code); err == nil {
			ev := domain.NewRoomEvent(domain.EventPlayerJoined, room, now)
			ev.PlayerID, ev.PlayerName = player.ID, player.Name
			s.publish(ctx, ev)
		}
	}
	return player, nil
}

// AdvanceRoom applies a host lifecycle command. When expectedIndex is set the command only
// applies if the room is still on that question, making retries of one logical step idempotent.
func (s *ArenaService) AdvanceRoom(ctx context.Context, code string, caller domain.Identity, action domain.Action, expectedIndex *int) (domain.Transition, error) {
	if caller.PlayerID == "" {
		return domain.Transition{}, domain.ErrUnauthenticated
	}
	code = domain.NormalizeCode(code)
	now := s.now()

	var (
		room   domain.Room
		effect domain.Effect
	)
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		room, err = s.rooms.UpdateRoom(ctx, code, func(r *domain.Room) error {
			if err := domain.AuthorizeHost(*r, caller); err != nil {
				return err
			}
			if expectedIndex != nil && r.CurrentQuestionIndex != *expectedIndex {
				return fmt.Errorf("%w: room is on question %d, not %d", domain.ErrInvalidTransition, r.CurrentQuestionIndex, *expectedIndex)
			}
			var applyErr error
			effect, applyErr = domain.Apply(r, action, now)
			return applyErr
		})
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Info("transition rejected", zap.String("room", code), zap.String("action", string(action)), zap.Error(err))
		}
		return domain.Transition{}, err
	}

	s.logger.Info("room advanced",
		zap.String("room", code),
		zap.String("action", string(action)),
		zap.String("effect", string(effect)),
		zap.Int("question", room.CurrentQuestionIndex),
	)
	s.publish(ctx, domain.NewRoomEvent(eventForEffect(effect), room, now))
	return domain.NewTransition(action, effect, room), nil
}

// SubmitAnswer scores one answer exactly once and increments the player's total.
func (s *ArenaService) SubmitAnswer(ctx context.Context, code string, caller domain.Identity, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	if caller.PlayerID == "" {
		return domain.AnswerResult{}, domain.ErrUnauthenticated
	}
	room, err := s.getRoom(ctx, code)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if err := domain.CheckSubmission(room, sub); err != nil {
		return domain.AnswerResult{}, err
	}

	question := room.Questions[sub.QuestionIndex]
	correct, points := domain.Score(question, sub.AnswerIndex, s.opts.PointsPerQuestion)
	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = s.now()
	}
	answer := domain.Answer{
		PlayerID:      caller.PlayerID,
		QuestionIndex: sub.QuestionIndex,
		AnswerIndex:   sub.AnswerIndex,
		Correct:       correct,
		Points:        points,
		SubmittedAt:   submittedAt,
	}

	var total int
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		total, err = s.rooms.RecordAnswer(ctx, room.Code, answer)
		return err
	})
	if err != nil {
		if domain.Retryable(err) {
			s.logger.Error("record answer failed", zap.String("room", room.Code), zap.String("player", caller.PlayerID), zap.Error(err))
		}
		return domain.AnswerResult{}, err
	}

	s.logger.Info("answer scored",
		zap.String("room", room.Code),
		zap.String("player", caller.PlayerID),
		zap.Int("question", sub.QuestionIndex),
		zap.Bool("correct", correct),
		zap.Int("points", points),
	)
	ev := domain.NewRoomEvent(domain.EventAnswerScored, room, s.now())
	ev.PlayerID, ev.Score = caller.PlayerID, total
	s.publish(ctx, ev)

	return domain.AnswerResult{
		QuestionIndex:     sub.QuestionIndex,
		Correct:           correct,
		Points:            points,
		CorrectAnswerText: question.CorrectText(),
		TotalScore:        total,
	}, nil
}

// GetRoomAnalytics builds the host report. It never mutates state.
func (s *ArenaService) GetRoomAnalytics(ctx context.Context, code string, caller domain.Identity) (domain.Analytics, error) {
	room, err := s.getRoom(ctx, code)
	if err != nil {
		return domain.Analytics{}, err
	}
	if err := domain.AuthorizeHost(room, caller); err != nil {
		return domain.Analytics{}, err
	}

	var (
		players []domain.Player
		answers []domain.Answer
	)
	err = s.call(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			players, err = s.rooms.ListPlayers(gctx, room.Code)
			return err
		})
		g.Go(func() error {
			var err error
			answers, err = s.rooms.ListAnswers(gctx, room.Code)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return domain.Analytics{}, err
	}
	return domain.Aggregate(room, players, answers), nil
}

// Subscribe returns live events for an existing room.
func (s *ArenaService) Subscribe(ctx context.Context, code string) (<-chan domain.RoomEvent, func(), error) {
	if s.events == nil {
		return nil, nil, fmt.Errorf("%w: live events are not configured", domain.ErrStoreUnavailable)
	}
	room, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	return s.events.Subscribe(ctx, room.Code)
}

// ReapAbandoned finishes active rooms idle for longer than idleFor. It is meant to be
// driven by an external scheduler; the service itself never runs timers.
func (s *ArenaService) ReapAbandoned(ctx context.Context, idleFor time.Duration) ([]string, error) {
	now := s.now()
	cutoff := now.Add(-idleFor)

	var codes []string
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		codes, err = s.rooms.ListIdleRooms(ctx, cutoff)
		return err
	})
	if err != nil {
		return nil, err
	}

	reaped := make([]string, 0, len(codes))
	for _, code := range codes {
		var room domain.Room
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			room, err = s.rooms.UpdateRoom(ctx, code, func(r *domain.Room) error {
				// activity may have happened since the listing
				if r.State() != domain.StateActive || !r.LastActivity().Before(cutoff) {
					return domain.ErrInvalidTransition
				}
				_, err := domain.Apply(r, domain.ActionFinishQuiz, now)
				return err
			})
			return err
		})
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return reaped, err
		}
		s.logger.Info("abandoned room finished", zap.String("room", code))
		s.publish(ctx, domain.NewRoomEvent(domain.EventQuizFinished, room, now))
		reaped = append(reaped, code)
	}
	return reaped, nil
}

func (s *ArenaService) getRoom(ctx context.Context, code string) (domain.Room, error) {
	code = domain.NormalizeCode(code)
	if !domain.ValidCode(code) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	var room domain.Room
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		room, err = s.rooms.GetRoom(ctx, code)
		return err
	})
	return room, err
}

// call bounds a store interaction by the store timeout and surfaces a timeout as retryable.
func (s *ArenaService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func (s *ArenaService) publish(ctx context.Context, event domain.RoomEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish room event failed", zap.String("room", event.Code), zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func eventForEffect(effect domain.Effect) domain.EventType {
	switch effect {
	case domain.EffectStarted:
		return domain.EventQuizStarted
	case domain.EffectFinished:
		return domain.EventQuizFinished
	default:
		return domain.EventQuestionOpened
	}
}
