package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// EventTypeOrderCreated публикуется после сохранения нового заказа.
	EventTypeOrderCreated EventType = domain.OutboxEventOrderCreated
)

// Topics для Kafka
const (
	TopicOrderEvents     = "shop.order.events"
	TopicDeadLetterQueue = "shop.dlq" // outbox-сообщения, не доставленные после всех retry
)

// Kafka headers публикуемых сообщений
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// OutboxEnvelope — формат сообщения, в котором outbox-запись уходит в Kafka.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	EnqueuedAt    *time.Time      `json:"enqueued_at,omitempty"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOutboxEnvelope оборачивает outbox-запись. Пустой payload заменяется на null,
// чтобы сообщение оставалось валидным JSON.
func NewOutboxEnvelope(msg domain.OutboxMessage, publishedAt time.Time) OutboxEnvelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	envelope := OutboxEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     EventType(msg.EventType),
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
	if !msg.CreatedAt.IsZero() {
		enqueued := msg.CreatedAt.UTC()
		envelope.EnqueuedAt = &enqueued
	}
	return envelope
}

// Headers возвращает заголовки, по которым потребители маршрутизируют сообщение без разбора тела.
func (e OutboxEnvelope) Headers() map[string]string {
	return map[string]string{
		HeaderEventType:     string(e.EventType),
		HeaderAggregateType: e.AggregateType,
		HeaderOutboxID:      e.ID,
	}
}
