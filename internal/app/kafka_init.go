package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

// eventPublishers — куда outbox worker отправляет события и их DLQ.
type eventPublishers struct {
	outbox   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

// initKafkaPublishers создаёт Kafka producer, если заданы brokers.
// Без brokers события только логируются; ошибка подключения возвращается вызывающему.
func initKafkaPublishers(cfg Config, logger *log.Entry) (eventPublishers, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers are not configured, outbox events will be logged only")
		return eventPublishers{outbox: logPublisher{logger: logger.WithField("publisher", "log")}}, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		return eventPublishers{}, err
	}

	logger.WithFields(log.Fields{
		"brokers":   cfg.KafkaBrokers,
		"topic":     cfg.KafkaTopic,
		"dlq_topic": cfg.KafkaDLQTopic,
	}).Info("kafka producer initialized")

	publishers := eventPublishers{
		outbox:   kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		producer: producer,
	}
	if cfg.KafkaDLQTopic != "" {
		publishers.dlq = kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)
	}
	return publishers, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// logPublisher подтверждает доставку, только записав событие в лог.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Info("outbox event")
	return nil
}
