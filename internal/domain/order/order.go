// Package order holds the order aggregate, its status state machine, and the
// wire contracts exchanged between the fulfillment services.
package order

import (
	"context"
	"fmt"
	"time"
)

// Status is the lifecycle state of an order. Transitions are monotonic:
// created -> sent_to_payment -> paid | payment_failed. The sent_to_payment
// stage is skipped only when the forward publish to the event log fails, in
// which case the order moves straight to payment_failed.
type Status string

const (
	StatusCreated       Status = "created"
	StatusSentToPayment Status = "sent_to_payment"
	StatusPaid          Status = "paid"
	StatusPaymentFailed Status = "payment_failed"
)

// rank orders statuses along the lifecycle. Terminal statuses share the
// highest rank; an unknown status ranks below everything.
func (s Status) rank() int {
	switch s {
	case StatusCreated:
		return 1
	case StatusSentToPayment:
		return 2
	case StatusPaid, StatusPaymentFailed:
		return 3
	default:
		return 0
	}
}

// Terminal reports whether the status is an end state of the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusPaymentFailed
}

// CanTransition reports whether moving from s to next respects the monotonic
// lifecycle. Skipping sent_to_payment is allowed only towards payment_failed.
func (s Status) CanTransition(next Status) bool {
	if s.rank() == 0 || next.rank() == 0 {
		return false
	}
	if s.Terminal() {
		return false
	}
	if s == StatusCreated && next == StatusPaid {
		return false
	}
	return next.rank() > s.rank()
}

// Sentinel errors surfaced by the order repository.
var (
	ErrNotFound      = fmt.Errorf("order not found")
	ErrAlreadyExists = fmt.Errorf("order already exists")
)

// Item is a single cart line.
type Item struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	Quantity   int    `json:"quantity"`
}

// Order is the persisted order record.
type Order struct {
	ID           string
	TraceID      string
	Status       Status
	AmountCents  int64
	Items        []Item
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository defines persistence operations for orders. Create must reject a
// duplicate id with ErrAlreadyExists; the status setters are stage-scoped so
// no two workers mutate the same lifecycle field.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	SetSentToPayment(ctx context.Context, id string) error
	SetPaid(ctx context.Context, id string) error
	SetPaymentFailed(ctx context.Context, id string, errorMessage string) error
}
