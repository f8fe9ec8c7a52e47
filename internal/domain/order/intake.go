package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for intake validation and admission.
var (
	// ErrInvalidOrder rejects an empty cart or a non-positive total before any
	// message reaches the transport.
	ErrInvalidOrder = fmt.Errorf("invalid order: empty cart or invalid amount")

	// ErrSimulatedProcessingFailure models an upstream rejection before any
	// order state exists.
	ErrSimulatedProcessingFailure = fmt.Errorf("order processing failed (simulated)")
)

// QueueUnavailableError indicates the work queue rejected the publish. The
// generated order id is kept so the caller can correlate the failure.
type QueueUnavailableError struct {
	OrderID string
	Err     error
}

func (e *QueueUnavailableError) Error() string {
	return fmt.Sprintf("order service busy: queue unavailable for order %s: %v", e.OrderID, e.Err)
}

func (e *QueueUnavailableError) Unwrap() error { return e.Err }

// RequestPublisher publishes an admitted order request onto the work queue.
type RequestPublisher interface {
	PublishOrderRequest(ctx context.Context, req *Request) error
}

// SubmitInput is a cart submission as received at the intake boundary.
type SubmitInput struct {
	TraceID string
	Items   []Item

	// TotalAmountCents is nil when the caller omitted the field, in which
	// case the total is computed from the items. An explicit zero is kept and
	// rejected by validation.
	TotalAmountCents *int64

	// Scenario is the raw test-error selector (X-Test-Error header).
	Scenario string
	// SimulateBankDelay and SimulatePaymentDeclined are body-level alternates
	// to the header selector; the header wins when both are present.
	SimulateBankDelay       bool
	SimulatePaymentDeclined bool
}

// Admission is the correlation handle returned on a successful submit.
type Admission struct {
	OrderID string
	TraceID string
}

// Intake validates and admits new orders. It persists nothing locally; all
// durable state lives downstream of the work queue.
type Intake struct {
	queue RequestPublisher
}

// NewIntake creates the intake service over the given work queue publisher.
func NewIntake(queue RequestPublisher) *Intake {
	return &Intake{queue: queue}
}

// Submit validates the cart, resolves the failure-injection scenario,
// generates the order id, and publishes the order request. Admission succeeds
// only if the publish succeeds.
func (s *Intake) Submit(ctx context.Context, in SubmitInput) (*Admission, error) {
	if in.Scenario == TestErrorProcessingFailure {
		return nil, ErrSimulatedProcessingFailure
	}

	var total int64
	if in.TotalAmountCents != nil {
		total = *in.TotalAmountCents
	} else {
		for _, it := range in.Items {
			total += it.PriceCents * int64(it.Quantity)
		}
	}
	if len(in.Items) == 0 || total <= 0 {
		return nil, ErrInvalidOrder
	}

	testError := ParseTestError(in.Scenario)
	if testError == TestErrorNone {
		switch {
		case in.SimulateBankDelay:
			testError = TestErrorBankTimeout
		case in.SimulatePaymentDeclined:
			testError = TestErrorPaymentDeclined
		}
	}

	orderID := uuid.New().String()
	req := &Request{
		OrderID:          orderID,
		TraceID:          in.TraceID,
		Items:            in.Items,
		TotalAmountCents: total,
		TestError:        testError,
	}
	if err := s.queue.PublishOrderRequest(ctx, req); err != nil {
		return nil, &QueueUnavailableError{OrderID: orderID, Err: err}
	}

	return &Admission{OrderID: orderID, TraceID: in.TraceID}, nil
}
