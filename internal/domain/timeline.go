package domain

import (
	"fmt"
	"time"
)

// TimelineEventType — тип события в жизненном цикле заказа.
type TimelineEventType string

const (
	// TimelineOrderCreated: заказ сохранён; LineCount — число сохранённых позиций.
	TimelineOrderCreated TimelineEventType = "order.created"
	// TimelineOrderLinesDropped: при сверке отброшены позиции; DroppedCount — их число.
	TimelineOrderLinesDropped TimelineEventType = "order.lines_dropped"
)

// Valid сообщает, что тип события известен.
func (t TimelineEventType) Valid() bool {
	return t == TimelineOrderCreated || t == TimelineOrderLinesDropped
}

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID      int64
	Type         TimelineEventType
	LineCount    int
	DroppedCount int
	Reason       string
	Occurred     time.Time
}

// Validate проверяет событие перед сохранением.
func (e TimelineEvent) Validate() error {
	switch {
	case e.OrderID <= 0:
		return fmt.Errorf("%w: order id must be positive", ErrTimelineEventInvalid)
	case !e.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrTimelineEventInvalid, e.Type)
	case e.LineCount < 0 || e.DroppedCount < 0:
		return fmt.Errorf("%w: negative line counters", ErrTimelineEventInvalid)
	case e.Type == TimelineOrderLinesDropped && e.DroppedCount == 0:
		return fmt.Errorf("%w: %s without dropped lines", ErrTimelineEventInvalid, e.Type)
	}
	return nil
}
