package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

// Append сохраняет событие заказа. Событие несуществующего заказа даёт ErrOrderNotFound.
func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	query, args, err := psql.Insert("timeline_events").
		Columns("order_id", "type", "line_count", "dropped_count", "reason", "occurred").
		Values(event.OrderID, string(event.Type), event.LineCount, event.DroppedCount, event.Reason, event.Occurred).
		ToSql()
	if err != nil {
		return fmt.Errorf("build timeline insert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("append %s: %w", event.Type, domain.ErrOrderNotFound)
		}
		return fmt.Errorf("append %s for order %d: %w", event.Type, event.OrderID, err)
	}
	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepository) List(ctx context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	query, args, err := psql.Select("order_id", "type", "line_count", "dropped_count", "reason", "occurred").
		From("timeline_events").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("occurred ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build timeline query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list timeline of order %d: %w", orderID, err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var (
			event   domain.TimelineEvent
			typeRaw string
		)
		if err := rows.Scan(&event.OrderID, &typeRaw, &event.LineCount, &event.DroppedCount, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.Type = domain.TimelineEventType(typeRaw)
		if !event.Type.Valid() {
			return nil, fmt.Errorf("%w: stored type %q", domain.ErrTimelineEventInvalid, typeRaw)
		}
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
