package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventCommandMatched    EventType = "command_matched"
	EventPayloadRejected   EventType = "payload_rejected"
	EventDeliverySucceeded EventType = "delivery_succeeded"
	EventDeliveryFailed    EventType = "delivery_failed"
	EventPlanetAnnounced   EventType = "planet_announced"
)

type Event struct {
	Type     EventType         `json:"type"`
	At       time.Time         `json:"at"`
	Channel  string            `json:"channel,omitempty"`
	ChatID   ChannelID         `json:"chat_id,omitempty"`
	Command  string            `json:"command,omitempty"`
	Category string            `json:"category,omitempty"`
	Payload  map[string]string `json:"payload,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for _, ch := range mb.eventSubscribers {
		select {
		case ch <- event:
		default:
			// Slow subscribers lose events.
		}
	}

	return true
}

// SubscribeEvents registers a buffered event stream. The returned function
// unsubscribes; canceling ctx or closing the bus does the same.
func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
