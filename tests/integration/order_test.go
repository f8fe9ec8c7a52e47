//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"
)

func TestOrderSaga_HappyPath(t *testing.T) {
	adm := submitOrder(t, nil)

	o := waitForStatus(t, adm.OrderID, "paid", 60*time.Second)
	if o.AmountCents != 1300 {
		t.Errorf("amountCents: got %d, want 1300", o.AmountCents)
	}
	if o.ErrorMessage != "" {
		t.Errorf("errorMessage: got %q, want empty", o.ErrorMessage)
	}
	if o.TraceID != adm.TraceID {
		t.Errorf("traceId: got %q, want %q", o.TraceID, adm.TraceID)
	}
}

func TestOrderSaga_PaymentDeclined(t *testing.T) {
	adm := submitOrder(t, map[string]string{"X-Test-Error": "payment_declined"})

	o := waitForStatus(t, adm.OrderID, "payment_failed", 60*time.Second)
	if o.ErrorMessage != "Insufficient funds (simulated)" {
		t.Errorf("errorMessage: got %q", o.ErrorMessage)
	}
}

func TestOrderSaga_ServiceUnavailable(t *testing.T) {
	adm := submitOrder(t, map[string]string{"X-Test-Error": "payment_service_unavailable"})

	o := waitForStatus(t, adm.OrderID, "payment_failed", 60*time.Second)
	if o.ErrorMessage != "Payment service temporarily unavailable (simulated)" {
		t.Errorf("errorMessage: got %q", o.ErrorMessage)
	}
}

func TestOrderSaga_BankTimeout(t *testing.T) {
	// The compose file shortens the simulated bank delay to 2s so this test
	// does not sit through the full production delay.
	adm := submitOrder(t, map[string]string{"X-Test-Error": "bank_timeout"})

	start := time.Now()
	o := waitForStatus(t, adm.OrderID, "payment_failed", 90*time.Second)
	if o.ErrorMessage != "Bank response timed out (simulated)" {
		t.Errorf("errorMessage: got %q", o.ErrorMessage)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Errorf("terminal state reached after %v, want >= 2s bank delay", elapsed)
	}
}

func TestSubmitOrder_ProcessingFailure(t *testing.T) {
	resp := doPost(t, "/api/orders", submitRequest{
		Items: []orderItemRequest{{ID: "p1", Name: "Waffle", PriceCents: 650, Quantity: 1}},
	}, map[string]string{"X-Test-Error": "order_processing_failure"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if !body.Simulated {
		t.Error("expected simulated=true")
	}
	if body.TraceID == "" {
		t.Error("expected a trace id in the error body")
	}
}

func TestSubmitOrder_EmptyCart(t *testing.T) {
	resp := doPost(t, "/api/orders", submitRequest{Items: []orderItemRequest{}}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	resp := doGet(t, "/api/orders/00000000-0000-0000-0000-000000000000")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
