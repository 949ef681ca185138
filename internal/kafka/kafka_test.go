package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-settlement/internal/config"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testTopics() config.TopicConfig {
	return config.TopicConfig{
		PaymentCompleted: "settlement.payment.completed",
		PaymentFailed:    "settlement.payment.failed",
		PaymentRefunded:  "settlement.payment.refunded",
		TicketCancelled:  "settlement.ticket.cancelled",
		TicketExpired:    "settlement.ticket.expired",
		PaymentRequests:  "settlement.payment.requests",
	}
}

func TestPublishRoutesByType(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testTopics(), logger.NewNop())
	ctx := context.Background()

	require.NoError(t, p.PublishSettlementEvent(ctx, models.SettlementEvent{Type: models.EventTypePaymentCompleted, TicketID: "t1", PaymentID: "p1"}))
	require.NoError(t, p.PublishSettlementEvent(ctx, models.SettlementEvent{Type: models.EventTypePaymentRejected, TicketID: "t2"}))
	require.NoError(t, p.PublishSettlementEvent(ctx, models.SettlementEvent{Type: models.EventTypeTicketExpired, TicketID: "t3"}))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "settlement.payment.completed", w.msgs[0].Topic)
	assert.Equal(t, []byte("t1"), w.msgs[0].Key)
	assert.Equal(t, "settlement.payment.failed", w.msgs[1].Topic)
	assert.Equal(t, "settlement.ticket.expired", w.msgs[2].Topic)

	var decoded models.SettlementEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "p1", decoded.PaymentID)
}

func TestPublishErrors(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testTopics(), logger.NewNop())

	err := p.PublishSettlementEvent(context.Background(), models.SettlementEvent{Type: "order.created"})
	assert.Error(t, err)

	w.err = errors.New("broker down")
	err = p.PublishSettlementEvent(context.Background(), models.SettlementEvent{Type: models.EventTypePaymentFailed})
	assert.ErrorContains(t, err, "broker down")
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	fetchErrs []error
	commitErr error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	if r.commitErr != nil {
		err := r.commitErr
		r.commitErr = nil
		return err
	}
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumerHandlesAndCommits(t *testing.T) {
	valid, err := json.Marshal(models.PaymentRequest{TicketID: "t1", UserID: "u1", Amount: 100, Method: models.MethodCash})
	require.NoError(t, err)
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: valid},
		{Offset: 2, Value: []byte("{not json")},
		{Offset: 3, Value: valid},
	}}
	c := NewConsumerWithReader(r, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var handled []models.PaymentRequest
	err = c.Start(ctx, func(_ context.Context, req models.PaymentRequest) error {
		handled = append(handled, req)
		if len(handled) == 2 {
			cancel()
		}
		return errors.New("declined")
	})

	require.NoError(t, err)
	assert.Len(t, handled, 2)
	assert.Equal(t, "t1", handled[0].TicketID)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestConsumerSurvivesBrokerErrors(t *testing.T) {
	valid, err := json.Marshal(models.PaymentRequest{TicketID: "t1", UserID: "u1", Amount: 100, Method: models.MethodCash})
	require.NoError(t, err)
	r := &fakeReader{
		msgs: []kafka.Message{
			{Offset: 1, Value: valid},
			{Offset: 2, Value: valid},
		},
		fetchErrs: []error{kafka.RebalanceInProgress},
		commitErr: errors.New("group generation changed"),
	}
	c := NewConsumerWithReader(r, logger.NewNop())
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	handled := 0
	err = c.Start(ctx, func(_ context.Context, req models.PaymentRequest) error {
		handled++
		if handled == 2 {
			cancel()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []int64{2}, r.committed)
}

func TestConsumerStopsWhileBackingOff(t *testing.T) {
	r := &fakeReader{fetchErrs: []error{errors.New("broker down")}}
	c := NewConsumerWithReader(r, logger.NewNop())
	c.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, c.Start(ctx, func(context.Context, models.PaymentRequest) error { return nil }))
}

func TestTopicNames(t *testing.T) {
	topics := testTopics()
	topics.TicketExpired = topics.TicketCancelled
	topics.PaymentRefunded = ""

	assert.Equal(t, []string{
		"settlement.payment.completed",
		"settlement.payment.failed",
		"settlement.ticket.cancelled",
		"settlement.payment.requests",
	}, TopicNames(topics))
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, NoopPublisher{Log: logger.NewNop()}.PublishSettlementEvent(context.Background(), models.SettlementEvent{}))
}
