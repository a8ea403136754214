package memory

import (
	"context"
	"sync"

	"quiz-arena/internal/domain"
)

// EventHub is an in-process implementation of app.EventBus.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.RoomEvent]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[string]map[chan domain.RoomEvent]struct{})}
}

func (h *EventHub) Publish(_ context.Context, event domain.RoomEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[event.Code] {
		Offer(ch, event)
	}
	return nil
}

func (h *EventHub) Subscribe(_ context.Context, code string) (<-chan domain.RoomEvent, func(), error) {
	ch := make(chan domain.RoomEvent, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[code]
	if !ok {
		subs = make(map[chan domain.RoomEvent]struct{})
		h.subscribers[code] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[code]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, code)
		}
	}
	return ch, cancel, nil
}

// Offer delivers event without blocking, dropping the oldest queued event when ch is full.
// Callers must be the only sender on ch.
func Offer(ch chan domain.RoomEvent, event domain.RoomEvent) {
	select {
	case ch <- event:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
}
