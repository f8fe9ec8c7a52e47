package worker

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avoropaev/marketplace/internal/domain/order"
	"github.com/avoropaev/marketplace/internal/notify"
)

// genericDeclineDetail is stored when a failed result carries neither an
// error message nor a code.
const genericDeclineDetail = "Payment declined"

// Finalizer handles payment_results deliveries: it finalizes the order
// status, emits the matching domain event, and pushes the terminal notice. A
// returned error means nack with requeue; nil means ack.
type Finalizer struct {
	orders   order.Repository
	events   EventPublisher
	notifier notify.Notifier
}

// NewFinalizer creates the payment-result handler.
func NewFinalizer(orders order.Repository, events EventPublisher, notifier notify.Notifier) *Finalizer {
	return &Finalizer{orders: orders, events: events, notifier: notifier}
}

// Handle processes one payment result. The ack happens only after the store
// update and the notification attempt complete.
func (w *Finalizer) Handle(ctx context.Context, res *order.PaymentResult) error {
	lg := zctx.From(ctx).With(
		zap.String("traceId", res.TraceID),
		zap.String("orderId", res.OrderID),
	)
	lg.Info("Payment result received", zap.Bool("success", res.Success))

	if res.Success {
		if err := w.orders.SetPaid(ctx, res.OrderID); err != nil {
			return errors.Wrap(err, "set paid")
		}
		if err := w.events.PublishEvent(ctx, &order.Event{
			Event:   order.EventOrderPaid,
			TraceID: res.TraceID,
			OrderID: res.OrderID,
		}); err != nil {
			lg.Warn("Failed to publish order_paid event", zap.Error(err))
		}
		if err := w.notifier.Notify(ctx, notify.Notice{
			OrderID: res.OrderID,
			Status:  order.StatusPaid,
		}); err != nil {
			lg.Warn("Failed to push paid notice", zap.Error(err))
		}
		return nil
	}

	detail := res.ErrorMessage
	if detail == "" {
		detail = res.ErrorCode
	}
	if detail == "" {
		detail = genericDeclineDetail
	}

	if err := w.orders.SetPaymentFailed(ctx, res.OrderID, detail); err != nil {
		return errors.Wrap(err, "set payment_failed")
	}
	if err := w.events.PublishEvent(ctx, &order.Event{
		Event:        order.EventOrderPaymentFailed,
		TraceID:      res.TraceID,
		OrderID:      res.OrderID,
		ErrorMessage: detail,
	}); err != nil {
		lg.Warn("Failed to publish order_payment_failed event", zap.Error(err))
	}
	if err := w.notifier.Notify(ctx, notify.Notice{
		OrderID: res.OrderID,
		Status:  order.StatusPaymentFailed,
		Detail:  res.ErrorMessage,
	}); err != nil {
		lg.Warn("Failed to push failure notice", zap.Error(err))
	}
	return nil
}
