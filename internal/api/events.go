package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avoropaev/marketplace/internal/domain/order"
	"github.com/avoropaev/marketplace/internal/notify"
)

// streamOrderEvents subscribes the caller to the terminal status of one order
// over Server-Sent Events. Exactly one notice is delivered, then the stream
// ends. A subscriber arriving after the terminal event fired observes
// nothing; it should poll the order instead.
func (h *Handler) streamOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.gateway.Subscribe(orderID)
	defer h.gateway.Unsubscribe(orderID, ch)

	select {
	case <-r.Context().Done():
		// Client disconnect removes the registration without delivering.
		return
	case n, ok := <-ch:
		if !ok {
			// Replaced by a later subscriber for the same order id.
			return
		}
		payload, err := json.Marshal(n)
		if err != nil {
			zctx.From(r.Context()).Error("Failed to encode notice",
				zap.String("orderId", orderID), zap.Error(err))
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// pushOrderEventRequest is the internal push body sent by the workers.
type pushOrderEventRequest struct {
	OrderID string       `json:"orderId"`
	Status  order.Status `json:"status"`
	Detail  string       `json:"detail,omitempty"`
}

// pushOrderEvent forwards a terminal notice from a worker to the in-process
// gateway. Only the two terminal statuses are accepted.
func (h *Handler) pushOrderEvent(w http.ResponseWriter, r *http.Request) {
	var body pushOrderEventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Malformed body",
		})
		return
	}
	if body.OrderID == "" || !body.Status.Terminal() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Missing orderId or status (paid|payment_failed)",
		})
		return
	}

	_ = h.gateway.Notify(r.Context(), notify.Notice{
		OrderID: body.OrderID,
		Status:  body.Status,
		Detail:  body.Detail,
	})
	w.WriteHeader(http.StatusNoContent)
}

// validScenarios are the selectors accepted by the trigger-error endpoint.
var validScenarios = []string{
	order.TestErrorProcessingFailure,
	string(order.TestErrorBankTimeout),
	string(order.TestErrorPaymentDeclined),
	string(order.TestErrorServiceUnavailable),
}

// triggerError exercises the failure scenarios outside of an order
// submission, returning the trace id for investigation.
func (h *Handler) triggerError(w http.ResponseWriter, r *http.Request) {
	tid := traceID(r)

	scenario := r.URL.Query().Get("type")
	if scenario == "" {
		var body struct {
			Type string `json:"type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		scenario = body.Type
	}

	valid := false
	for _, s := range validScenarios {
		if scenario == s {
			valid = true
			break
		}
	}
	if !valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid type",
			"traceId": tid,
			"allowed": validScenarios,
		})
		return
	}

	zctx.From(r.Context()).Error("Test error triggered",
		zap.String("traceId", tid), zap.String("simulated_error", scenario))

	if scenario == order.TestErrorProcessingFailure {
		writeError(w, http.StatusInternalServerError, errorResponse{
			Error:     "Simulated: order_processing_failure",
			TraceID:   tid,
			Simulated: true,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Use X-Test-Error header when creating order",
		"traceId": tid,
		"header":  testErrorHeader,
		"value":   scenario,
	})
}
