package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-settlement/internal/config"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

// MessageWriter is the part of kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes settlement outcomes, one topic per event type. Messages
// are keyed by ticket id so a ticket's events stay ordered.
type Producer struct {
	Writer MessageWriter
	topics map[string]string
	log    *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, topics, log)
}

func NewProducerWithWriter(w MessageWriter, topics config.TopicConfig, log *logger.Logger) *Producer {
	return &Producer{
		Writer: w,
		topics: topicsByEventType(topics),
		log:    log,
	}
}

func topicsByEventType(t config.TopicConfig) map[string]string {
	return map[string]string{
		models.EventTypePaymentCompleted: t.PaymentCompleted,
		models.EventTypePaymentFailed:    t.PaymentFailed,
		models.EventTypePaymentRejected:  t.PaymentFailed,
		models.EventTypePaymentRefunded:  t.PaymentRefunded,
		models.EventTypeTicketCancelled:  t.TicketCancelled,
		models.EventTypeTicketExpired:    t.TicketExpired,
	}
}

// PublishSettlementEvent streams event to the topic of its type.
func (p *Producer) PublishSettlementEvent(ctx context.Context, event models.SettlementEvent) error {
	topic, ok := p.topics[event.Type]
	if !ok || topic == "" {
		return fmt.Errorf("no topic configured for event type %q", event.Type)
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.TicketID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}

	p.log.LogKafka("PUBLISH", topic, fmt.Sprintf("%s ticket=%s payment=%s", event.Type, event.TicketID, event.PaymentID))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher drops events. It stands in for the producer when Kafka is
// disabled.
type NoopPublisher struct {
	Log *logger.Logger
}

func (n NoopPublisher) PublishSettlementEvent(_ context.Context, event models.SettlementEvent) error {
	if n.Log != nil {
		n.Log.Debug("KAFKA", fmt.Sprintf("Kafka disabled, dropping %s for ticket %s", event.Type, event.TicketID))
	}
	return nil
}
