package eventlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoropaev/marketplace/internal/domain/order"
)

// --- Mock implementations ---

type mockWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

// --- Tests ---

func TestPublishPaymentRequest(t *testing.T) {
	payments := &mockWriter{}
	p := NewProducerWith(payments, &mockWriter{})

	err := p.PublishPaymentRequest(context.Background(), &order.PaymentRequest{
		TraceID:     "trace-1",
		OrderID:     "order-1",
		AmountCents: 1300,
		TestError:   order.TestErrorBankTimeout,
	})
	require.NoError(t, err)

	require.Len(t, payments.messages, 1)
	msg := payments.messages[0]

	// Keyed by order id so all messages for one order land on one partition.
	assert.Equal(t, "order-1", string(msg.Key))

	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "traceId", msg.Headers[0].Key)
	assert.Equal(t, "trace-1", string(msg.Headers[0].Value))

	var decoded order.PaymentRequest
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, int64(1300), decoded.AmountCents)
	assert.Equal(t, order.TestErrorBankTimeout, decoded.TestError)
}

func TestPublishPaymentRequest_WriterError(t *testing.T) {
	payments := &mockWriter{err: errors.New("broker unreachable")}
	p := NewProducerWith(payments, &mockWriter{})

	err := p.PublishPaymentRequest(context.Background(), &order.PaymentRequest{OrderID: "order-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order-1")
}

func TestPublishEvent_StampsTimestamp(t *testing.T) {
	events := &mockWriter{}
	p := NewProducerWith(&mockWriter{}, events)

	ev := &order.Event{
		Event:   order.EventOrderCreated,
		TraceID: "trace-1",
		OrderID: "order-1",
	}
	require.NoError(t, p.PublishEvent(context.Background(), ev))

	require.Len(t, events.messages, 1)
	assert.Equal(t, "order-1", string(events.messages[0].Key))

	var decoded order.Event
	require.NoError(t, json.Unmarshal(events.messages[0].Value, &decoded))
	assert.Equal(t, order.EventOrderCreated, decoded.Event)
	assert.False(t, decoded.Timestamp.IsZero(), "zero timestamp must be stamped at publish")
}

func TestPublishEvent_KeepsCallerTimestamp(t *testing.T) {
	events := &mockWriter{}
	p := NewProducerWith(&mockWriter{}, events)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.PublishEvent(context.Background(), &order.Event{
		Event:     order.EventOrderPaid,
		OrderID:   "order-1",
		Timestamp: at,
	}))

	var decoded order.Event
	require.NoError(t, json.Unmarshal(events.messages[0].Value, &decoded))
	assert.True(t, decoded.Timestamp.Equal(at))
}

func TestProducerClose(t *testing.T) {
	payments := &mockWriter{}
	events := &mockWriter{}
	p := NewProducerWith(payments, events)

	require.NoError(t, p.Close())
	assert.True(t, payments.closed)
	assert.True(t, events.closed)
}
