package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/infra/memory"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventBus fans room events out across instances with Redis pub/sub.
type EventBus struct {
	client *redis.Client
	logger *zap.Logger
}

func NewEventBus(client *redis.Client, logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{client: client, logger: logger}
}

func (b *EventBus) Publish(ctx context.Context, event domain.RoomEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, eventChannel(event.Code), payload).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

// Subscribe confirms the subscription before returning so no event published afterwards is missed.
func (b *EventBus) Subscribe(ctx context.Context, code string) (<-chan domain.RoomEvent, func(), error) {
	pubsub := b.client.Subscribe(context.Background(), eventChannel(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, storeErr(err)
	}

	out := make(chan domain.RoomEvent, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event domain.RoomEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("drop malformed room event", zap.String("room", code), zap.Error(err))
					continue
				}
				memory.Offer(out, event)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func eventChannel(code string) string {
	return "arena:events:" + code
}
