// Package payment implements the deterministic payment decision logic.
//
// There is no real bank integration: the outcome is a pure function of the
// test-error tag carried by the payment request, with the bank_timeout branch
// standing in for a slow upstream call.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/avoropaev/marketplace/internal/domain/order"
)

// Result error codes.
const (
	CodeBankTimeout        = "BANK_TIMEOUT"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// DefaultBankDelay is the simulated slow-bank response time.
const DefaultBankDelay = 15 * time.Second

// ResultPublisher delivers the payment result onto the work queue.
type ResultPublisher interface {
	PublishPaymentResult(ctx context.Context, res *order.PaymentResult) error
}

// Processor consumes payment requests and produces exactly one result per
// request. The simulated bank delay blocks only the partition owning the
// message, never other partitions.
type Processor struct {
	results   ResultPublisher
	bankDelay time.Duration
}

// NewProcessor creates a Processor publishing results via the given publisher.
// A non-positive bankDelay falls back to DefaultBankDelay.
func NewProcessor(results ResultPublisher, bankDelay time.Duration) *Processor {
	if bankDelay <= 0 {
		bankDelay = DefaultBankDelay
	}
	return &Processor{results: results, bankDelay: bankDelay}
}

// Handle decides the payment and publishes the result. A failed result
// publish is returned as a handler error so the inbound message is
// redelivered rather than the result being silently dropped.
func (p *Processor) Handle(ctx context.Context, req *order.PaymentRequest) error {
	res, err := p.decide(ctx, req)
	if err != nil {
		return err
	}
	return p.results.PublishPaymentResult(ctx, res)
}

// decide evaluates the decision table. It returns an error only when the
// context is cancelled during the simulated bank delay.
func (p *Processor) decide(ctx context.Context, req *order.PaymentRequest) (*order.PaymentResult, error) {
	lg := zctx.From(ctx).With(
		zap.String("traceId", req.TraceID),
		zap.String("orderId", req.OrderID),
	)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		span.SetAttributes(
			attribute.String("traceId", req.TraceID),
			attribute.String("orderId", req.OrderID),
		)
	}
	lg.Info("Processing payment",
		zap.Int64("amountCents", req.AmountCents),
		zap.String("testError", string(req.TestError)),
	)

	switch req.TestError {
	case order.TestErrorBankTimeout:
		lg.Info("Simulated bank delay", zap.Duration("delay", p.bankDelay))
		timer := time.NewTimer(p.bankDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &order.PaymentResult{
			TraceID:      req.TraceID,
			OrderID:      req.OrderID,
			Success:      false,
			ErrorCode:    CodeBankTimeout,
			ErrorMessage: "Bank response timed out (simulated)",
		}, nil

	case order.TestErrorPaymentDeclined:
		lg.Warn("Simulated payment declined")
		return &order.PaymentResult{
			TraceID:      req.TraceID,
			OrderID:      req.OrderID,
			Success:      false,
			ErrorCode:    CodeInsufficientFunds,
			ErrorMessage: "Insufficient funds (simulated)",
		}, nil

	case order.TestErrorServiceUnavailable:
		// Still respond with an error result so the flow stays traceable.
		lg.Error("Simulated payment service unavailable")
		return &order.PaymentResult{
			TraceID:      req.TraceID,
			OrderID:      req.OrderID,
			Success:      false,
			ErrorCode:    CodeServiceUnavailable,
			ErrorMessage: "Payment service temporarily unavailable (simulated)",
		}, nil

	default:
		lg.Info("Payment completed")
		return &order.PaymentResult{
			TraceID: req.TraceID,
			OrderID: req.OrderID,
			Success: true,
		}, nil
	}
}
