package domain

import "time"

// OutboxMessage хранит данные для публикуемого события.
// CreatedAt заполняется хранилищем при постановке в очередь.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStatus — состояние записи outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// Агрегаты и типы событий outbox.
const (
	OutboxAggregateOrder    = "order"
	OutboxEventOrderCreated = "order.created"
)
