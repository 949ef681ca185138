package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

// MessageReader is the part of kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentRequestHandler processes one payment request read from the topic.
// A returned error is logged; the message is committed either way since a
// settlement attempt is never retried automatically.
type PaymentRequestHandler func(ctx context.Context, req models.PaymentRequest) error

// defaultRetryDelay is how long the consumer waits after a broker error
// before reading again.
const defaultRetryDelay = time.Second

type Consumer struct {
	reader     MessageReader
	log        *logger.Logger
	retryDelay time.Duration
}

// NewConsumer creates a consumer for the given topic and group.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(reader, log)
}

func NewConsumerWithReader(r MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: r, log: log, retryDelay: defaultRetryDelay}
}

// Start reads payment requests until ctx ends. Broker errors such as a
// group rebalance are logged and retried; they never stop the consumer.
func (c *Consumer) Start(ctx context.Context, handle PaymentRequestHandler) error {
	c.log.LogProcess("KAFKA_CONSUMER", "payment request consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading payment request: %v", err))
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		var req models.PaymentRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping malformed payment request at offset %d: %v", msg.Offset, err))
		} else {
			c.log.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("payment request for ticket %s", req.TicketID))
			if err := handle(ctx, req); err != nil {
				c.log.Warn("KAFKA", fmt.Sprintf("Payment request for ticket %s failed: %v", req.TicketID, err))
			}
		}

		// A later commit covers this offset, so a failed one is only logged.
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d: %v", msg.Offset, err))
			if !c.wait(ctx) {
				return nil
			}
		}
	}
}

// wait sleeps for the retry delay and reports false when ctx ended first.
func (c *Consumer) wait(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
