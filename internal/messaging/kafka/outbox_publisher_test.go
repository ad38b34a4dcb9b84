package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			return fmt.Errorf("expected key by order id, got %s", key)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope OutboxEnvelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if envelope.EventType != EventTypeOrderCreated || envelope.ID != "outbox-1" {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		if string(envelope.Payload) != `{"order_id":42}` {
			return fmt.Errorf("unexpected payload %s", envelope.Payload)
		}

		for _, h := range msg.Headers {
			if string(h.Key) == HeaderEventType && string(h.Value) == string(EventTypeOrderCreated) {
				return nil
			}
		}
		return fmt.Errorf("event type header is missing")
	})

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer, "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   "42",
		EventType:     domain.OutboxEventOrderCreated,
		Payload:       []byte(`{"order_id":42}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer, TopicDeadLetterQueue)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   "43",
		EventType:     domain.OutboxEventOrderCreated,
		Payload:       []byte(`{"order_id":43}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestNewOutboxEnvelope_EmptyPayloadIsNull(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	envelope := NewOutboxEnvelope(domain.OutboxMessage{ID: "m-1", EventType: domain.OutboxEventOrderCreated}, at)

	if string(envelope.Payload) != "null" {
		t.Fatalf("expected null payload, got %s", envelope.Payload)
	}
	if envelope.PublishedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %s", envelope.PublishedAt.Location())
	}
	if envelope.EnqueuedAt != nil {
		t.Fatalf("expected no enqueued_at for message without CreatedAt, got %s", envelope.EnqueuedAt)
	}
	if _, err := json.Marshal(envelope); err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
}

func TestNewOutboxEnvelope_CarriesEnqueueTime(t *testing.T) {
	t.Parallel()

	enqueued := time.Date(2026, 1, 2, 3, 0, 0, 0, time.FixedZone("X", 3600))
	envelope := NewOutboxEnvelope(domain.OutboxMessage{ID: "m-2", CreatedAt: enqueued}, enqueued.Add(time.Minute))

	if envelope.EnqueuedAt == nil || !envelope.EnqueuedAt.Equal(enqueued) || envelope.EnqueuedAt.Location() != time.UTC {
		t.Fatalf("unexpected enqueued_at %v", envelope.EnqueuedAt)
	}
}
