package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avoropaev/marketplace/internal/domain/order"
)

// testErrorHeader selects a deterministic failure scenario for an order.
const testErrorHeader = "X-Test-Error"

// submitOrderRequest is the cart submission body. The declared total is
// optional; when absent it defaults to the sum over items. A pointer keeps an
// explicit zero distinguishable from an omitted field, so zero still fails
// validation.
type submitOrderRequest struct {
	Items                   []order.Item `json:"items"`
	TotalAmountCents        *int64       `json:"totalAmountCents"`
	SimulateBankDelay       bool         `json:"simulateBankDelay"`
	SimulatePaymentDeclined bool         `json:"simulatePaymentDeclined"`
}

// submitOrderResponse is the admission handle returned on acceptance.
type submitOrderResponse struct {
	OrderID string `json:"orderId"`
	TraceID string `json:"traceId"`
	Status  string `json:"status"`
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	tid := traceID(r)
	scenario := r.Header.Get(testErrorHeader)
	lg := zctx.From(r.Context()).With(zap.String("traceId", tid))
	lg.Info("Create order request", zap.String("testError", scenario))

	// An absent body is tolerated (it fails cart validation downstream, after
	// the failure-injection branch got its chance to fire).
	var body submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		lg.Warn("Malformed order body", zap.Error(err))
		writeError(w, http.StatusBadRequest, errorResponse{
			Error:   "Invalid order: malformed body",
			TraceID: tid,
		})
		return
	}

	adm, err := h.intake.Submit(r.Context(), order.SubmitInput{
		TraceID:                 tid,
		Items:                   body.Items,
		TotalAmountCents:        body.TotalAmountCents,
		Scenario:                scenario,
		SimulateBankDelay:       body.SimulateBankDelay,
		SimulatePaymentDeclined: body.SimulatePaymentDeclined,
	})
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	lg.Info("Order submitted to queue", zap.String("orderId", adm.OrderID))
	writeJSON(w, http.StatusAccepted, submitOrderResponse{
		OrderID: adm.OrderID,
		TraceID: adm.TraceID,
		Status:  "submitted",
	})
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	tid := traceID(r)
	lg := zctx.From(r.Context()).With(zap.String("traceId", tid))

	switch {
	case errors.Is(err, order.ErrSimulatedProcessingFailure):
		lg.Error("Simulated error: order_processing_failure")
		writeError(w, http.StatusInternalServerError, errorResponse{
			Error:     "Order processing failed (simulated)",
			TraceID:   tid,
			Simulated: true,
		})

	case errors.Is(err, order.ErrInvalidOrder):
		lg.Warn("Validation failed: empty cart or invalid amount")
		writeError(w, http.StatusBadRequest, errorResponse{
			Error:   "Invalid order: empty cart or invalid amount",
			TraceID: tid,
		})

	default:
		var qerr *order.QueueUnavailableError
		if errors.As(err, &qerr) {
			// The generated order id is returned so the failure stays
			// correlatable even though nothing was enqueued.
			lg.Error("Failed to publish order to queue",
				zap.String("orderId", qerr.OrderID), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, errorResponse{
				Error:   "Order service busy (queue unavailable)",
				TraceID: tid,
				OrderID: qerr.OrderID,
			})
			return
		}
		lg.Error("Order submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal error",
			TraceID: tid,
		})
	}
}

// orderResponse is the full persisted order projection.
type orderResponse struct {
	ID           string       `json:"id"`
	TraceID      string       `json:"traceId"`
	Status       order.Status `json:"status"`
	AmountCents  int64        `json:"amountCents"`
	Items        []order.Item `json:"items"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	tid := traceID(r)
	id := r.PathValue("id")

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			zctx.From(r.Context()).Info("Order not found",
				zap.String("traceId", tid), zap.String("orderId", id))
			writeError(w, http.StatusNotFound, errorResponse{
				Error:   "Order not found",
				TraceID: tid,
			})
			return
		}
		zctx.From(r.Context()).Error("Failed to load order",
			zap.String("traceId", tid), zap.String("orderId", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal error",
			TraceID: tid,
		})
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{
		ID:           o.ID,
		TraceID:      o.TraceID,
		Status:       o.Status,
		AmountCents:  o.AmountCents,
		Items:        o.Items,
		ErrorMessage: o.ErrorMessage,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	})
}
