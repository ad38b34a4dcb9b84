package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type outboxRecord struct {
	msg      domain.OutboxMessage
	status   domain.OutboxStatus
	attempts int
}

// outboxRepositoryInMemory держит события заказов в порядке постановки.
type outboxRepositoryInMemory struct {
	mu    sync.RWMutex
	queue []*outboxRecord
	byID  map[string]*outboxRecord
	now   func() time.Time
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{
		byID: make(map[string]*outboxRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue ставит событие в конец очереди со статусом pending.
func (r *outboxRepositoryInMemory) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, exists := r.byID[msg.ID]; exists {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s already enqueued", msg.ID)
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	msg.CreatedAt = r.now()

	record := &outboxRecord{msg: msg, status: domain.OutboxStatusPending}
	r.queue = append(r.queue, record)
	r.byID[msg.ID] = record
	return msg, nil
}

// PullPending возвращает до limit pending-сообщений в порядке постановки.
func (r *outboxRepositoryInMemory) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.pendingLocked(limit), nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *outboxRepositoryInMemory) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := r.pendingLocked(0)
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].CreatedAt
	}
	return stats, nil
}

func (r *outboxRepositoryInMemory) MarkSent(_ context.Context, id string) error {
	return r.transition(id, domain.OutboxStatusSent)
}

func (r *outboxRepositoryInMemory) MarkFailed(_ context.Context, id string) error {
	return r.transition(id, domain.OutboxStatusFailed)
}

// AllPending возвращает все pending-сообщения.
func (r *outboxRepositoryInMemory) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.pendingLocked(0)
}

func (r *outboxRepositoryInMemory) transition(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[id]
	if !ok || record.status != domain.OutboxStatusPending {
		return fmt.Errorf("%w: message %s is not pending", domain.ErrOutboxPublish, id)
	}
	record.status = status
	record.attempts++
	return nil
}

// pendingLocked собирает pending-сообщения; limit <= 0 означает все.
func (r *outboxRepositoryInMemory) pendingLocked(limit int) []domain.OutboxMessage {
	result := make([]domain.OutboxMessage, 0)
	for _, record := range r.queue {
		if record.status != domain.OutboxStatusPending {
			continue
		}
		result = append(result, record.msg)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
