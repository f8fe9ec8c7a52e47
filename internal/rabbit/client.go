// Package rabbit wraps the AMQP work-queue transport. Each process owns one
// connection and one channel, established at startup and released at
// shutdown; the client is passed by reference into producers and consumers.
package rabbit

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/avoropaev/marketplace/internal/domain/order"
)

// Queue names.
const (
	QueueOrderRequests  = "order_requests"
	QueuePaymentResults = "payment_results"
)

// Client is the owned AMQP resource for one process.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials the broker and declares both durable queues.
func Connect(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	for _, q := range []string{QueueOrderRequests, QueuePaymentResults} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, errors.Wrapf(err, "declare queue %s", q)
		}
	}

	return &Client{conn: conn, ch: ch}, nil
}

// Close releases the channel and the connection.
func (c *Client) Close() error {
	if err := c.ch.Close(); err != nil {
		_ = c.conn.Close()
		return errors.Wrap(err, "close channel")
	}
	return c.conn.Close()
}

// IsClosed reports whether the underlying connection is gone. Used by
// readiness checks.
func (c *Client) IsClosed() bool {
	return c.conn.IsClosed()
}

// PublishOrderRequest enqueues an order request as a persistent JSON message.
func (c *Client) PublishOrderRequest(ctx context.Context, req *order.Request) error {
	return c.publish(ctx, QueueOrderRequests, req)
}

// PublishPaymentResult enqueues a payment result as a persistent JSON message.
func (c *Client) PublishPaymentResult(ctx context.Context, res *order.PaymentResult) error {
	return c.publish(ctx, QueuePaymentResults, res)
}

func (c *Client) publish(ctx context.Context, queue string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	err = c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish to %s", queue)
	}
	return nil
}

// ConsumeOrderRequests runs the order_requests consumer loop until ctx is
// cancelled. Prefetch is one: a single in-flight message per consumer
// instance. A nil handler result acks the delivery; an error nacks it with
// requeue, yielding at-least-once redelivery.
func (c *Client) ConsumeOrderRequests(ctx context.Context, handler func(ctx context.Context, req *order.Request) error) error {
	return consume(ctx, c.ch, QueueOrderRequests, handler)
}

// ConsumePaymentResults runs the payment_results consumer loop until ctx is
// cancelled, with the same ack/nack semantics as ConsumeOrderRequests.
func (c *Client) ConsumePaymentResults(ctx context.Context, handler func(ctx context.Context, res *order.PaymentResult) error) error {
	return consume(ctx, c.ch, QueuePaymentResults, handler)
}

func consume[T any](ctx context.Context, ch *amqp.Channel, queue string, handler func(ctx context.Context, msg *T) error) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return errors.Wrap(err, "set prefetch")
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "consume %s", queue)
	}

	lg := zctx.From(ctx).With(zap.String("queue", queue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.Errorf("consumer channel for %s closed", queue)
			}
			var msg T
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				// Malformed payloads are requeued unconditionally, matching
				// the source system's no-dead-letter policy.
				lg.Error("Failed to decode message", zap.Error(err))
				_ = d.Nack(false, true)
				continue
			}
			if err := handler(ctx, &msg); err != nil {
				lg.Error("Failed to process message", zap.Error(err))
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
