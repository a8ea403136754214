package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"quiz-arena/internal/domain"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// RoomStore keeps rooms in Redis hashes. Layout per room:
//
//	arena:room:{code}          hash  lifecycle fields + questions JSON
//	arena:room:{code}:players  hash  playerID -> name
//	arena:room:{code}:joined   hash  playerID -> join time
//	arena:room:{code}:scores   hash  playerID -> score
//	arena:room:{code}:order    list  playerIDs in join order
//	arena:room:{code}:answers  hash  playerID_questionIndex -> answer JSON
//
// Active rooms are indexed in the arena:rooms:active sorted set by last activity. The
// lifecycle transaction writes both the room hash and that index, so the store needs a
// single-node client.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

// createRoomScript takes the TTL in milliseconds (0 = none) followed by the hash fields.
var createRoomScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
local ttl = tonumber(ARGV[1])
if ttl > 0 then redis.call('PEXPIRE', KEYS[1], ttl) end
return 1
`)

// addPlayerScript returns 1 when created, 0 when already present, negative on rejection.
var addPlayerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'finished') == '1' then return -2 end
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then
  if ARGV[2] ~= '' then redis.call('HSET', KEYS[2], ARGV[1], ARGV[2]) end
  return 0
end
local max = tonumber(ARGV[4])
if max > 0 and redis.call('HLEN', KEYS[2]) >= max then return -3 end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[4], ARGV[1], 0)
redis.call('RPUSH', KEYS[5], ARGV[1])
redis.call('HINCRBY', KEYS[1], 'playerCount', 1)
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  for i = 2, 5 do redis.call('PEXPIRE', KEYS[i], ttl) end
end
return 1
`)

// recordAnswerScript creates the answer only if absent and increments the score in the
// same step. It returns the new score, or a negative rejection code.
var recordAnswerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'finished') == '1' then return -2 end
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 0 then return -3 end
if redis.call('HSETNX', KEYS[4], ARGV[2], ARGV[3]) == 0 then return -4 end
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then redis.call('PEXPIRE', KEYS[4], ttl) end
return redis.call('HINCRBY', KEYS[3], ARGV[1], tonumber(ARGV[4]))
`)

func (s *RoomStore) CreateRoom(ctx context.Context, room domain.Room) error {
	room.PlayerCount = 0
	fields, err := encodeRoom(room)
	if err != nil {
		return err
	}
	args := append([]interface{}{s.ttl.Milliseconds()}, fields...)
	created, err := createRoomScript.Run(ctx, s.client, []string{roomKey(room.Code)}, args...).Int()
	if err != nil {
		return storeErr(err)
	}
	if created == 0 {
		return domain.ErrRoomExists
	}
	return nil
}

func (s *RoomStore) GetRoom(ctx context.Context, code string) (domain.Room, error) {
	fields, err := s.client.HGetAll(ctx, roomKey(code)).Result()
	if err != nil {
		return domain.Room{}, storeErr(err)
	}
	if len(fields) == 0 {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return decodeRoom(code, fields)
}

// UpdateRoom uses optimistic WATCH/MULTI. On a concurrent write fn is re-run against the
// fresh room, so each call applies exactly one transition.
func (s *RoomStore) UpdateRoom(ctx context.Context, code string, fn func(room *domain.Room) error) (domain.Room, error) {
	key := roomKey(code)
	var (
		updated domain.Room
		fnErr   error
	)
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			// expired rooms leave their code in the active index
			if err := tx.ZRem(ctx, activeKey, code).Err(); err != nil {
				return err
			}
			fnErr = domain.ErrRoomNotFound
			return nil
		}
		room, err := decodeRoom(code, fields)
		if err != nil {
			fnErr = err
			return nil
		}
		if err := fn(&room); err != nil {
			fnErr = err
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeLifecycle(room)...)
			switch room.State() {
			case domain.StateActive:
				pipe.ZAdd(ctx, activeKey, redis.Z{Score: float64(room.LastActivity().UnixMilli()), Member: code})
			case domain.StateFinished:
				pipe.ZRem(ctx, activeKey, code)
			}
			return nil
		})
		if err == nil {
			updated = room
		}
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		fnErr = nil
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Room{}, storeErr(err)
		}
		if fnErr != nil {
			return domain.Room{}, fnErr
		}
		return updated, nil
	}
	return domain.Room{}, fmt.Errorf("%w: room %s is under contention", domain.ErrStoreUnavailable, code)
}

func (s *RoomStore) AddPlayer(ctx context.Context, code string, player domain.Player, maxPlayers int) (domain.Player, bool, error) {
	keys := []string{roomKey(code), playersKey(code), joinedKey(code), scoresKey(code), orderKey(code)}
	res, err := addPlayerScript.Run(ctx, s.client, keys, player.ID, player.Name, formatTime(player.JoinedAt), maxPlayers).Int()
	if err != nil {
		return domain.Player{}, false, storeErr(err)
	}
	switch res {
	case -1:
		return domain.Player{}, false, domain.ErrRoomNotFound
	case -2:
		return domain.Player{}, false, domain.ErrRoomFinished
	case -3:
		return domain.Player{}, false, domain.ErrRoomFull
	}
	stored, err := s.getPlayer(ctx, code, player.ID)
	if err != nil {
		return domain.Player{}, false, err
	}
	return stored, res == 1, nil
}

func (s *RoomStore) RecordAnswer(ctx context.Context, code string, answer domain.Answer) (int, error) {
	payload, err := json.Marshal(answer)
	if err != nil {
		return 0, fmt.Errorf("marshal answer: %w", err)
	}
	keys := []string{roomKey(code), playersKey(code), scoresKey(code), answersKey(code)}
	res, err := recordAnswerScript.Run(ctx, s.client, keys, answer.PlayerID, answer.Key(), payload, answer.Points).Int()
	if err != nil {
		return 0, storeErr(err)
	}
	switch res {
	case -1:
		return 0, domain.ErrRoomNotFound
	case -2:
		return 0, domain.ErrRoomFinished
	case -3:
		return 0, domain.ErrPlayerNotFound
	case -4:
		return 0, domain.ErrAlreadyAnswered
	}
	return res, nil
}

func (s *RoomStore) ListPlayers(ctx context.Context, code string) ([]domain.Player, error) {
	pipe := s.client.Pipeline()
	exists := pipe.Exists(ctx, roomKey(code))
	order := pipe.LRange(ctx, orderKey(code), 0, -1)
	names := pipe.HGetAll(ctx, playersKey(code))
	joined := pipe.HGetAll(ctx, joinedKey(code))
	scores := pipe.HGetAll(ctx, scoresKey(code))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storeErr(err)
	}
	if exists.Val() == 0 {
		return nil, domain.ErrRoomNotFound
	}

	players := make([]domain.Player, 0, len(order.Val()))
	for _, id := range order.Val() {
		player, err := decodePlayer(id, names.Val()[id], scores.Val()[id], joined.Val()[id])
		if err != nil {
			return nil, err
		}
		players = append(players, player)
	}
	return players, nil
}

func (s *RoomStore) ListAnswers(ctx context.Context, code string) ([]domain.Answer, error) {
	pipe := s.client.Pipeline()
	exists := pipe.Exists(ctx, roomKey(code))
	raw := pipe.HGetAll(ctx, answersKey(code))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storeErr(err)
	}
	if exists.Val() == 0 {
		return nil, domain.ErrRoomNotFound
	}

	answers := make([]domain.Answer, 0, len(raw.Val()))
	for key, payload := range raw.Val() {
		var a domain.Answer
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", key, err)
		}
		answers = append(answers, a)
	}
	sort.Slice(answers, func(i, j int) bool {
		if !answers[i].SubmittedAt.Equal(answers[j].SubmittedAt) {
			return answers[i].SubmittedAt.Before(answers[j].SubmittedAt)
		}
		return answers[i].Key() < answers[j].Key()
	})
	return answers, nil
}

func (s *RoomStore) ListIdleRooms(ctx context.Context, before time.Time) ([]string, error) {
	codes, err := s.client.ZRangeByScore(ctx, activeKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	return codes, nil
}

func (s *RoomStore) getPlayer(ctx context.Context, code, id string) (domain.Player, error) {
	pipe := s.client.Pipeline()
	name := pipe.HGet(ctx, playersKey(code), id)
	joined := pipe.HGet(ctx, joinedKey(code), id)
	score := pipe.HGet(ctx, scoresKey(code), id)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Player{}, storeErr(err)
	}
	if errors.Is(name.Err(), redis.Nil) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return decodePlayer(id, name.Val(), score.Val(), joined.Val())
}

const activeKey = "arena:rooms:active"

func roomKey(code string) string    { return "arena:room:{" + code + "}" }
func playersKey(code string) string { return roomKey(code) + ":players" }
func joinedKey(code string) string  { return roomKey(code) + ":joined" }
func scoresKey(code string) string  { return roomKey(code) + ":scores" }
func orderKey(code string) string   { return roomKey(code) + ":order" }
func answersKey(code string) string { return roomKey(code) + ":answers" }

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
