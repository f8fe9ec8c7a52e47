package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusCreated.Terminal())
	assert.False(t, StatusSentToPayment.Terminal())
	assert.True(t, StatusPaid.Terminal())
	assert.True(t, StatusPaymentFailed.Terminal())
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"created to sent_to_payment", StatusCreated, StatusSentToPayment, true},
		{"sent_to_payment to paid", StatusSentToPayment, StatusPaid, true},
		{"sent_to_payment to payment_failed", StatusSentToPayment, StatusPaymentFailed, true},
		// Skipping sent_to_payment is only allowed towards payment_failed
		// (forward publish failure terminalizes the order directly).
		{"created straight to payment_failed", StatusCreated, StatusPaymentFailed, true},
		{"created straight to paid", StatusCreated, StatusPaid, false},
		{"no backward from sent_to_payment", StatusSentToPayment, StatusCreated, false},
		{"no transition out of paid", StatusPaid, StatusPaymentFailed, false},
		{"no transition out of payment_failed", StatusPaymentFailed, StatusPaid, false},
		{"unknown source", Status("bogus"), StatusPaid, false},
		{"unknown target", StatusCreated, Status("bogus"), false},
		{"self transition", StatusCreated, StatusCreated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestParseTestError(t *testing.T) {
	assert.Equal(t, TestErrorBankTimeout, ParseTestError("bank_timeout"))
	assert.Equal(t, TestErrorPaymentDeclined, ParseTestError("payment_declined"))
	assert.Equal(t, TestErrorServiceUnavailable, ParseTestError("payment_service_unavailable"))
	assert.Equal(t, TestErrorNone, ParseTestError(""))
	assert.Equal(t, TestErrorNone, ParseTestError("something_else"))
	// order_processing_failure never maps onto a payment test error; it is
	// rejected at intake before any message exists.
	assert.Equal(t, TestErrorNone, ParseTestError("order_processing_failure"))
}
