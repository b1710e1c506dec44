// Package notify is the engine's boundary to the user-facing notification
// fan-out service. Publishing is fire-and-forget: a slow or absent sink must
// never block or fail the state transition that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	EventBorrowingCreated EventType = "BorrowingCreated"
	EventStatusChanged    EventType = "StatusChanged"
	EventReturnCompleted  EventType = "ReturnCompleted"
)

type Event struct {
	Type        EventType `json:"type"`
	BorrowingID uuid.UUID `json:"borrowing_id,omitempty"`
	EquipmentID uuid.UUID `json:"equipment_id,omitempty"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier publishes engine events. Implementations must return immediately;
// delivery is best-effort.
type Notifier interface {
	Publish(event Event)
}

// ─── Redis ────────────────────────────────────────────────────────────────────

// RedisPublisher pushes events onto a Redis pub/sub channel that the
// notification service subscribes to.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(event Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("[ERROR] notify: marshal %s event: %v", event.Type, err)
			return
		}
		if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
			// Lost notifications are acceptable; lost transitions are not.
			log.Printf("[WARN] notify: publish %s event failed: %v", event.Type, err)
		}
	}()
}

// ─── No-op ────────────────────────────────────────────────────────────────────

// NopNotifier discards all events. Used when no Redis address is configured
// and in tests.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}
