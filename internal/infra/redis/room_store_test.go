package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-arena/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRoomStore(client, time.Hour)

	room := sampleRoom()
	require.NoError(t, store.CreateRoom(ctx, room))

	got, err := store.GetRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, "host", got.HostID)
	assert.Equal(t, -1, got.CurrentQuestionIndex)
	assert.Equal(t, domain.StateWaiting, got.State())
	assert.Zero(t, got.PlayerCount)
	assert.Equal(t, room.Questions, got.Questions)
	assert.True(t, room.CreatedAt.Equal(got.CreatedAt))

	assert.ErrorIs(t, store.CreateRoom(ctx, room), domain.ErrRoomExists)

	_, err = store.GetRoom(ctx, "NOPE00")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomStoreUpdateRoom(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	require.NoError(t, store.CreateRoom(ctx, sampleRoom()))

	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	room, err := store.UpdateRoom(ctx, "AB12CD", func(r *domain.Room) error {
		_, err := domain.Apply(r, domain.ActionStartQuiz, now)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, room.CurrentQuestionIndex)

	reloaded, err := store.GetRoom(ctx, "AB12CD")
	require.NoError(t, err)
	assert.True(t, reloaded.Started)
	require.NotNil(t, reloaded.StartedAt)
	assert.True(t, now.Equal(*reloaded.StartedAt))

	rejected := errors.New("rejected")
	_, err = store.UpdateRoom(ctx, "AB12CD", func(r *domain.Room) error {
		r.CurrentQuestionIndex = 99
		return rejected
	})
	assert.ErrorIs(t, err, rejected)
	reloaded, err = store.GetRoom(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.CurrentQuestionIndex)

	codes, err := store.ListIdleRooms(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"AB12CD"}, codes)

	_, err = store.UpdateRoom(ctx, "AB12CD", func(r *domain.Room) error {
		_, err := domain.Apply(r, domain.ActionFinishQuiz, now.Add(time.Minute))
		return err
	})
	require.NoError(t, err)
	codes, err = store.ListIdleRooms(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestRoomStoreConcurrentNextAdvancesOncePerCall(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	room := sampleRoom()
	room.Questions = append(room.Questions, room.Questions...)
	require.NoError(t, store.CreateRoom(ctx, room))
	_, err := store.UpdateRoom(ctx, "AB12CD", func(r *domain.Room) error {
		_, err := domain.Apply(r, domain.ActionStartQuiz, time.Now())
		return err
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.UpdateRoom(ctx, "AB12CD", func(r *domain.Room) error {
				_, err := domain.Apply(r, domain.ActionNextQuestion, time.Now())
				return err
			})
		}()
	}
	wg.Wait()

	got, err := store.GetRoom(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentQuestionIndex)
}

func TestRoomStoreRecordAnswerExactlyOnce(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRoomStore(client, time.Hour)
	require.NoError(t, store.CreateRoom(ctx, sampleRoom()))
	_, created, err := store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "p1", Name: "Alice", JoinedAt: time.Now()}, 0)
	require.NoError(t, err)
	require.True(t, created)

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordAnswer(ctx, "AB12CD", domain.Answer{PlayerID: "p1", QuestionIndex: 0, AnswerIndex: 1, Correct: true, Points: 10, SubmittedAt: time.Now()})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, dupes := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrAlreadyAnswered):
			dupes++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, dupes)

	players, err := store.ListPlayers(ctx, "AB12CD")
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "p1", players[0].ID)
	assert.Equal(t, 10, players[0].Score)

	answers, err := store.ListAnswers(ctx, "AB12CD")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.True(t, answers[0].Correct)

	_, err = store.RecordAnswer(ctx, "AB12CD", domain.Answer{PlayerID: "ghost", QuestionIndex: 0})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestRoomStoreRejectsAfterFinish(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	require.NoError(t, store.CreateRoom(ctx, sampleRoom()))
	_, _, err := store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "p1", Name: "Alice"}, 0)
	require.NoError(t, err)
	_, err = store.UpdateRoom(ctx, "AB12CD", func(r *domain.Room) error {
		r.Started, r.Finished = true, true
		return nil
	})
	require.NoError(t, err)

	_, err = store.RecordAnswer(ctx, "AB12CD", domain.Answer{PlayerID: "p1", QuestionIndex: 0, Points: 10})
	assert.ErrorIs(t, err, domain.ErrRoomFinished)
	_, _, err = store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "late"}, 0)
	assert.ErrorIs(t, err, domain.ErrRoomFinished)

	players, err := store.ListPlayers(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Zero(t, players[0].Score)
}

func TestRoomStoreCapacity(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	require.NoError(t, store.CreateRoom(ctx, sampleRoom()))

	_, _, err := store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "p1", Name: "Alice"}, 2)
	require.NoError(t, err)
	_, _, err = store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "p2", Name: "Bob"}, 2)
	require.NoError(t, err)
	_, _, err = store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "p3", Name: "Cleo"}, 2)
	assert.ErrorIs(t, err, domain.ErrRoomFull)

	p, created, err := store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "p1", Name: "Alicia"}, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Alicia", p.Name)

	room, err := store.GetRoom(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, 2, room.PlayerCount)
}

func TestRoomStoreExpiresRoomKeysTogether(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := NewRoomStore(client, time.Hour)
	require.NoError(t, store.CreateRoom(ctx, sampleRoom()))
	assert.Equal(t, time.Hour, mr.TTL(roomKey("AB12CD")))

	_, _, err := store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "p1", Name: "Alice"}, 0)
	require.NoError(t, err)
	for _, key := range []string{playersKey("AB12CD"), joinedKey("AB12CD"), scoresKey("AB12CD"), orderKey("AB12CD")} {
		assert.Equal(t, time.Hour, mr.TTL(key), key)
	}

	unbounded := NewRoomStore(client, 0)
	room := sampleRoom()
	room.Code = "ZZ99ZZ"
	require.NoError(t, unbounded.CreateRoom(ctx, room))
	assert.Zero(t, mr.TTL(roomKey("ZZ99ZZ")))
}

func TestRoomStorePrunesExpiredActiveRooms(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := NewRoomStore(client, time.Minute)
	require.NoError(t, store.CreateRoom(ctx, sampleRoom()))

	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	_, err := store.UpdateRoom(ctx, "AB12CD", func(r *domain.Room) error {
		_, err := domain.Apply(r, domain.ActionStartQuiz, now)
		return err
	})
	require.NoError(t, err)

	idle, err := store.ListIdleRooms(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"AB12CD"}, idle)

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists(roomKey("AB12CD")))

	_, err = store.UpdateRoom(ctx, "AB12CD", func(r *domain.Room) error { return nil })
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	idle, err = store.ListIdleRooms(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, idle)
	assert.Zero(t, client.ZCard(ctx, activeKey).Val())
}

func TestRoomStoreRejectsCorruptFields(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	require.NoError(t, store.CreateRoom(ctx, sampleRoom()))
	_, _, err := store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "p1", Name: "Alice"}, 0)
	require.NoError(t, err)

	require.NoError(t, client.HSet(ctx, scoresKey("AB12CD"), "p1", "lots").Err())
	_, err = store.ListPlayers(ctx, "AB12CD")
	assert.Error(t, err)
	_, _, err = store.AddPlayer(ctx, "AB12CD", domain.Player{ID: "p1"}, 0)
	assert.Error(t, err)

	require.NoError(t, client.HSet(ctx, roomKey("AB12CD"), "playerCount", "many").Err())
	_, err = store.GetRoom(ctx, "AB12CD")
	assert.Error(t, err)
}

func TestRoomStoreSurfacesOutageAsRetryable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	mr.Close()

	_, err := store.GetRoom(context.Background(), "AB12CD")
	require.Error(t, err)
	assert.True(t, domain.Retryable(err))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := newClient(mr)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
}

func sampleRoom() domain.Room {
	return domain.NewRoom("AB12CD", "host", []domain.Question{
		{Prompt: "2+2", Options: []string{"3", "4", "5", "6"}, CorrectIndex: 1},
		{Prompt: "3+3", Options: []string{"5", "7", "8", "6"}, CorrectIndex: 3},
	}, time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC))
}
