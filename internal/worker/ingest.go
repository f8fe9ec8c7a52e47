// Package worker implements the queue-driven message handlers: order
// ingestion and payment-result finalization.
package worker

import (
	"context"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avoropaev/marketplace/internal/domain/order"
	"github.com/avoropaev/marketplace/internal/notify"
)

// failedToForwardDetail is the terminal error detail stored when the forward
// publish to the event log fails.
const failedToForwardDetail = "Failed to send to payment"

// PaymentPublisher forwards admitted orders onto the event log.
type PaymentPublisher interface {
	PublishPaymentRequest(ctx context.Context, req *order.PaymentRequest) error
}

// EventPublisher appends domain events onto the event log.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *order.Event) error
}

// Ingester handles order_requests deliveries: persist, forward to payment,
// advance status. A returned error means nack with requeue; nil means ack.
type Ingester struct {
	orders   order.Repository
	payments PaymentPublisher
	events   EventPublisher
	notifier notify.Notifier

	// seen is an approximate fast-path for redelivered order ids. The DB
	// unique constraint stays authoritative; a false positive only costs a
	// lookup, never a skipped order.
	seen *bloom.BloomFilter
}

// NewIngester creates the ingestion handler.
func NewIngester(orders order.Repository, payments PaymentPublisher, events EventPublisher, notifier notify.Notifier) *Ingester {
	return &Ingester{
		orders:   orders,
		payments: payments,
		events:   events,
		notifier: notifier,
		seen:     bloom.NewWithEstimates(1_000_000, 0.01),
	}
}

// Handle processes one order request. Persistence failure is treated as
// transient (error -> requeue); a duplicate id is treated as a redelivery of
// an order that was persisted before the ack was lost: the stored status
// decides whether the forward hop still needs to happen. An order that
// already moved past created is left untouched so the delivery cannot drag
// it backward. A failed forward publish terminalizes the order instead of
// requeueing, since the failure is not transient from the queue's
// perspective.
func (w *Ingester) Handle(ctx context.Context, req *order.Request) error {
	lg := zctx.From(ctx).With(
		zap.String("traceId", req.TraceID),
		zap.String("orderId", req.OrderID),
	)

	if w.seen.TestString(req.OrderID) {
		// Probable redelivery: consult the store before inserting. A false
		// positive only costs this lookup.
		existing, err := w.orders.GetByID(ctx, req.OrderID)
		switch {
		case errors.Is(err, order.ErrNotFound):
			// False positive, proceed with the insert.
		case err != nil:
			return errors.Wrap(err, "check redelivered order")
		case existing.Status != order.StatusCreated:
			lg.Info("Redelivered order already progressed, skipping",
				zap.String("status", string(existing.Status)))
			return nil
		default:
			lg.Warn("Redelivered order persisted but not forwarded, continuing")
			return w.forward(ctx, lg, req)
		}
	}

	err := w.orders.Create(ctx, &order.Order{
		ID:          req.OrderID,
		TraceID:     req.TraceID,
		Status:      order.StatusCreated,
		AmountCents: req.TotalAmountCents,
		Items:       req.Items,
	})
	switch {
	case errors.Is(err, order.ErrAlreadyExists):
		w.seen.AddString(req.OrderID)
		existing, gerr := w.orders.GetByID(ctx, req.OrderID)
		if gerr != nil {
			return errors.Wrap(gerr, "check duplicate order")
		}
		if existing.Status != order.StatusCreated {
			lg.Warn("Order already persisted and progressed, skipping",
				zap.String("status", string(existing.Status)))
			return nil
		}
		lg.Warn("Order already persisted, continuing as redelivery")
	case err != nil:
		return errors.Wrap(err, "create order")
	default:
		w.seen.AddString(req.OrderID)
	}

	return w.forward(ctx, lg, req)
}

// forward publishes the payment request, advances the order to
// sent_to_payment, and emits the order_created event.
func (w *Ingester) forward(ctx context.Context, lg *zap.Logger, req *order.Request) error {
	if err := w.payments.PublishPaymentRequest(ctx, &order.PaymentRequest{
		TraceID:     req.TraceID,
		OrderID:     req.OrderID,
		AmountCents: req.TotalAmountCents,
		TestError:   req.TestError,
	}); err != nil {
		// Terminal: redelivery would not help, ack after recording the failure.
		lg.Error("Failed to forward to payment", zap.Error(err))
		if err := w.orders.SetPaymentFailed(ctx, req.OrderID, failedToForwardDetail+" (Kafka)"); err != nil {
			lg.Error("Failed to terminalize order", zap.Error(err))
		}
		if err := w.notifier.Notify(ctx, notify.Notice{
			OrderID: req.OrderID,
			Status:  order.StatusPaymentFailed,
			Detail:  failedToForwardDetail,
		}); err != nil {
			lg.Warn("Failed to push failure notice", zap.Error(err))
		}
		return nil
	}

	if err := w.orders.SetSentToPayment(ctx, req.OrderID); err != nil {
		return errors.Wrap(err, "set sent_to_payment")
	}

	if err := w.events.PublishEvent(ctx, &order.Event{
		Event:       order.EventOrderCreated,
		TraceID:     req.TraceID,
		OrderID:     req.OrderID,
		AmountCents: req.TotalAmountCents,
	}); err != nil {
		lg.Warn("Failed to publish order_created event", zap.Error(err))
	}

	lg.Info("Order sent to payment")
	return nil
}
