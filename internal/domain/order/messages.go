package order

import "time"

// TestError selects a deterministic failure branch in the payment processor.
// It is carried verbatim from the intake request through the OrderRequest and
// PaymentRequest messages.
type TestError string

const (
	TestErrorNone               TestError = ""
	TestErrorBankTimeout        TestError = "bank_timeout"
	TestErrorPaymentDeclined    TestError = "payment_declined"
	TestErrorServiceUnavailable TestError = "payment_service_unavailable"

	// TestErrorProcessingFailure is rejected by the intake gateway before any
	// order id exists; it never reaches a transport message.
	TestErrorProcessingFailure = "order_processing_failure"
)

// ParseTestError maps a scenario selector onto a payment test error. Unknown
// selectors map to none so an arbitrary header value cannot derail an order.
func ParseTestError(s string) TestError {
	switch TestError(s) {
	case TestErrorBankTimeout, TestErrorPaymentDeclined, TestErrorServiceUnavailable:
		return TestError(s)
	default:
		return TestErrorNone
	}
}

// Request is published by the intake gateway onto the order_requests queue and
// consumed by the ingestion worker.
type Request struct {
	OrderID          string    `json:"orderId"`
	TraceID          string    `json:"traceId"`
	Items            []Item    `json:"items"`
	TotalAmountCents int64     `json:"totalAmountCents"`
	TestError        TestError `json:"testError,omitempty"`
}

// PaymentRequest is published by the ingestion worker onto the
// payment_requests topic, keyed by order id.
type PaymentRequest struct {
	TraceID     string    `json:"traceId"`
	OrderID     string    `json:"orderId"`
	AmountCents int64     `json:"amountCents"`
	TestError   TestError `json:"testError,omitempty"`
}

// PaymentResult is published by the payment processor onto the
// payment_results queue. Exactly one result is produced per PaymentRequest.
type PaymentResult struct {
	TraceID      string `json:"traceId"`
	OrderID      string `json:"orderId"`
	Success      bool   `json:"success"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Domain event names appended to the order-events topic.
const (
	EventOrderCreated       = "order_created"
	EventOrderPaid          = "order_paid"
	EventOrderPaymentFailed = "order_payment_failed"
)

// Event is a domain event appended to the order-events topic, keyed by order
// id so per-order emission order is preserved.
type Event struct {
	Event        string    `json:"event"`
	TraceID      string    `json:"traceId"`
	OrderID      string    `json:"orderId"`
	AmountCents  int64     `json:"amountCents,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
