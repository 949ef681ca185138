// Package sse streams committed settlement outcomes to browsers watching an
// event or a buyer's own purchases.
package sse

import (
	"context"
	"sync"

	"ms-settlement/internal/models"
)

const clientBuffer = 16

// Emitter fans settlement events out to subscribed clients. It satisfies the
// same publisher interface as the Kafka producer.
type Emitter struct {
	mu      sync.RWMutex
	byEvent map[string][]chan models.SettlementEvent
	byUser  map[string][]chan models.SettlementEvent
}

func NewEmitter() *Emitter {
	return &Emitter{
		byEvent: make(map[string][]chan models.SettlementEvent),
		byUser:  make(map[string][]chan models.SettlementEvent),
	}
}

// SubscribeToEvent returns a channel of the event's outcomes. It is closed
// once ctx ends.
func (e *Emitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan models.SettlementEvent {
	return e.subscribe(ctx, e.byEvent, eventID)
}

// SubscribeToUser returns a channel of outcomes for the user's tickets.
func (e *Emitter) SubscribeToUser(ctx context.Context, userID string) <-chan models.SettlementEvent {
	return e.subscribe(ctx, e.byUser, userID)
}

func (e *Emitter) subscribe(ctx context.Context, clients map[string][]chan models.SettlementEvent, key string) <-chan models.SettlementEvent {
	ch := make(chan models.SettlementEvent, clientBuffer)

	e.mu.Lock()
	clients[key] = append(clients[key], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(clients, key, ch)
	}()
	return ch
}

// PublishSettlementEvent never blocks: a client whose buffer is full misses
// the event.
func (e *Emitter) PublishSettlementEvent(_ context.Context, event models.SettlementEvent) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if event.EventID != "" {
		broadcast(e.byEvent[event.EventID], event)
	}
	if event.UserID != "" {
		broadcast(e.byUser[event.UserID], event)
	}
	return nil
}

func broadcast(clients []chan models.SettlementEvent, event models.SettlementEvent) {
	for _, ch := range clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (e *Emitter) remove(clients map[string][]chan models.SettlementEvent, key string, ch chan models.SettlementEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := clients[key]
	for i, c := range list {
		if c == ch {
			clients[key] = append(list[:i], list[i+1:]...)
			close(ch)
			break
		}
	}
	if len(clients[key]) == 0 {
		delete(clients, key)
	}
}

// EventClientCount returns the number of clients watching eventID.
func (e *Emitter) EventClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byEvent[eventID])
}

func (e *Emitter) UserClientCount(userID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byUser[userID])
}
