package eventlog

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/avoropaev/marketplace/internal/domain/order"
)

// messageReader abstracts kafka.Reader for testability.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Retry pacing for a message whose handler keeps failing.
const (
	retryBackoffBase = 500 * time.Millisecond
	retryBackoffMax  = 30 * time.Second
)

// Consumer reads payment requests under a named consumer group. Instances of
// the same group share partitions; messages within one partition are handled
// strictly sequentially, so a slow handler blocks only its own partition.
type Consumer struct {
	reader messageReader

	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewConsumer creates a payment_requests reader for the given consumer group.
func NewConsumer(brokers []string, groupID string) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    TopicPaymentRequests,
		MinBytes: 1,
		MaxBytes: 10e6,
	}))
}

// NewConsumerWith is only for tests to inject a fake reader.
func NewConsumerWith(reader messageReader) *Consumer {
	return newConsumer(reader)
}

func newConsumer(reader messageReader) *Consumer {
	return &Consumer{
		reader:      reader,
		backoffBase: retryBackoffBase,
		backoffMax:  retryBackoffMax,
	}
}

// Close releases the reader and its group membership.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run fetches payment requests until ctx is cancelled. The offset is
// committed only after the handler returns nil. A failing handler is retried
// in place with backoff: the loop never fetches past an unhandled message, so
// a later commit cannot skip over it.
func (c *Consumer) Run(ctx context.Context, handler func(ctx context.Context, req *order.PaymentRequest) error) error {
	lg := zctx.From(ctx).With(zap.String("topic", TopicPaymentRequests))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetch message")
		}

		traceID := headerValue(msg, traceHeader)

		var req order.PaymentRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			lg.Error("Failed to decode payment request",
				zap.String("traceId", traceID),
				zap.Int("partition", msg.Partition),
				zap.Error(err),
			)
			// Nothing to retry for an undecodable payload: commit and move on.
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return errors.Wrap(err, "commit offset")
			}
			continue
		}

		backoff := c.backoffBase
		for {
			err := handler(ctx, &req)
			if err == nil {
				break
			}
			lg.Error("Failed to process payment request, retrying",
				zap.String("traceId", traceID),
				zap.String("orderId", req.OrderID),
				zap.Int("partition", msg.Partition),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > c.backoffMax {
				backoff = c.backoffMax
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit offset")
		}
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return "unknown"
}

// BrokerCheck returns a readiness check that dials the first broker.
func BrokerCheck(brokers []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return errors.New("no kafka brokers configured")
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return errors.Wrap(err, "dial kafka broker")
		}
		_ = conn.SetDeadline(time.Now().Add(time.Second))
		return conn.Close()
	}
}
