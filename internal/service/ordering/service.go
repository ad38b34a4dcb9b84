package ordering

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const defaultListOrdersLimit = 100

// Service — прикладной сервис заказов: сборка плюс чтение и побочные события.
type Service struct {
	assembler *Assembler
	orders    domain.OrderRepository
	customers domain.CustomerRepository
	timeline  domain.TimelineRepository
	outbox    domain.OutboxRepository
	logger    *log.Entry
	now       func() time.Time
}

// NewService конструирует сервис. timeline и outbox могут быть nil.
func NewService(
	assembler *Assembler,
	orders domain.OrderRepository,
	customers domain.CustomerRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &Service{
		assembler: assembler,
		orders:    orders,
		customers: customers,
		timeline:  timeline,
		outbox:    outbox,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type orderCreatedLine struct {
	ArticleID int64 `json:"article_id"`
	Quantity  int32 `json:"quantity"`
}

type orderCreatedPayload struct {
	OrderID      int64              `json:"order_id"`
	CustomerID   int64              `json:"customer_id"`
	Lines        []orderCreatedLine `json:"lines"`
	DroppedLines int                `json:"dropped_lines"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Create собирает и сохраняет заказ. Timeline и outbox пишутся после сохранения;
// их сбои логируются и не отменяют созданный заказ.
func (s *Service) Create(ctx context.Context, req domain.OrderRequest) (Result, error) {
	result, err := s.assembler.Assemble(ctx, req)
	if err != nil {
		return Result{}, err
	}

	order := result.Order
	occurred := order.CreatedAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	s.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:   order.ID,
		Type:      domain.TimelineOrderCreated,
		LineCount: len(order.Lines),
		Reason:    fmt.Sprintf("%d line(s)", len(order.Lines)),
		Occurred:  occurred,
	})
	if len(result.Dropped) > 0 {
		s.appendTimeline(ctx, domain.TimelineEvent{
			OrderID:      order.ID,
			Type:         domain.TimelineOrderLinesDropped,
			LineCount:    len(req.Lines),
			DroppedCount: len(result.Dropped),
			Reason:       describeDropped(result.Dropped, len(req.Lines)),
			Occurred:     occurred,
		})
	}
	s.enqueueOrderCreated(ctx, order, len(result.Dropped), occurred)

	return result, nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (s *Service) Get(ctx context.Context, id int64) (domain.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		s.logLoadFailure(err, "Get", id)
		return domain.Order{}, err
	}
	return order, nil
}

// CustomerOf возвращает клиента, оформившего заказ.
func (s *Service) CustomerOf(ctx context.Context, orderID int64) (domain.Customer, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.customers.Get(ctx, order.CustomerID)
	if err != nil {
		s.logLoadFailure(err, "CustomerOf", orderID)
		return domain.Customer{}, err
	}
	return customer, nil
}

// ListByCustomer возвращает заказы существующего клиента; limit <= 0 означает значение по умолчанию.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	if _, err := s.customers.Get(ctx, customerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}

	orders, err := s.orders.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Error("failed to list orders")
		return nil, err
	}
	return orders, nil
}

// Timeline возвращает события заказа в порядке появления.
func (s *Service) Timeline(ctx context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return s.timeline.List(ctx, orderID)
}

func (s *Service) appendTimeline(ctx context.Context, event domain.TimelineEvent) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"type":     event.Type,
		}).Warn("failed to append timeline event")
		return
	}
	if m := s.assembler.metrics; m != nil {
		m.RecordTimelineEvent()
	}
}

func (s *Service) enqueueOrderCreated(ctx context.Context, order domain.Order, dropped int, occurred time.Time) {
	if s.outbox == nil {
		return
	}

	lines := make([]orderCreatedLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderCreatedLine{ArticleID: line.Article.ID, Quantity: line.Quantity})
	}
	payload, err := json.Marshal(orderCreatedPayload{
		OrderID:      order.ID,
		CustomerID:   order.CustomerID,
		Lines:        lines,
		DroppedLines: dropped,
		CreatedAt:    occurred,
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to encode outbox payload")
		return
	}

	msg := domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     domain.OutboxEventOrderCreated,
		Payload:       payload,
	}
	if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue outbox message")
		return
	}
	if m := s.assembler.metrics; m != nil {
		m.RecordOutboxEvent()
	}
}

func (s *Service) logLoadFailure(err error, operation string, id int64) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"order_id":  id,
	})
	if domain.IsNotFound(err) {
		entry.Debug("order lookup miss")
		return
	}
	entry.Warn("failed to load order")
}

func describeDropped(dropped []DroppedLine, requested int) string {
	positions := make([]string, 0, len(dropped))
	for _, line := range dropped {
		positions = append(positions, fmt.Sprintf("#%d %s", line.Position, line.Reason))
	}
	return fmt.Sprintf("%d of %d line(s) dropped: %s", len(dropped), requested, strings.Join(positions, ", "))
}
