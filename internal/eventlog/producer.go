// Package eventlog wraps the Kafka transport: the payment_requests topic and
// the order-events domain event topic, both keyed by order id so all messages
// for one order serialize on one partition.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/avoropaev/marketplace/internal/domain/order"
)

// Topic names.
const (
	TopicPaymentRequests = "payment_requests"
	TopicOrderEvents     = "order-events"
)

// traceHeader carries the correlation trace id as message metadata, in
// addition to the body.
const traceHeader = "traceId"

// messageWriter abstracts kafka.Writer for testability.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer owns the writers for both topics. Pure-Go client
// (segmentio/kafka-go), hash-balanced on the message key.
type Producer struct {
	payments messageWriter
	events   messageWriter
}

// NewProducer creates writers for the payment_requests and order-events
// topics against the given brokers.
func NewProducer(brokers []string) *Producer {
	return &Producer{
		payments: newWriter(brokers, TopicPaymentRequests),
		events:   newWriter(brokers, TopicOrderEvents),
	}
}

// NewProducerWith is only for tests to inject fake writers.
func NewProducerWith(payments, events messageWriter) *Producer {
	return &Producer{payments: payments, events: events}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

// Close releases both writers.
func (p *Producer) Close() error {
	errPayments := p.payments.Close()
	errEvents := p.events.Close()
	if errPayments != nil {
		return errPayments
	}
	return errEvents
}

// PublishPaymentRequest appends a payment request keyed by order id.
func (p *Producer) PublishPaymentRequest(ctx context.Context, req *order.PaymentRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal payment request")
	}

	err = p.payments.WriteMessages(ctx, kafka.Message{
		Key:     []byte(req.OrderID),
		Value:   body,
		Headers: []kafka.Header{{Key: traceHeader, Value: []byte(req.TraceID)}},
	})
	if err != nil {
		return errors.Wrapf(err, "publish payment request for order %s", req.OrderID)
	}
	return nil
}

// PublishEvent appends a domain event keyed by order id. The emission
// timestamp is stamped here when the caller left it zero.
func (p *Producer) PublishEvent(ctx context.Context, ev *order.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	err = p.events.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.OrderID),
		Value:   body,
		Headers: []kafka.Header{{Key: traceHeader, Value: []byte(ev.TraceID)}},
	})
	if err != nil {
		return errors.Wrapf(err, "publish event %s for order %s", ev.Event, ev.OrderID)
	}
	return nil
}
