// Package api implements the client-facing HTTP boundary of the intake and
// notification gateways.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/avoropaev/marketplace/internal/domain/order"
	"github.com/avoropaev/marketplace/internal/notify"
	"github.com/avoropaev/marketplace/pkg/httpmiddleware"
)

// Handler serves the order API: submission, lookup, the SSE status stream,
// and the internal push endpoint used by the workers.
type Handler struct {
	intake  *order.Intake
	orders  order.Repository
	gateway *notify.Gateway
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(intake *order.Intake, orders order.Repository, gateway *notify.Gateway) *Handler {
	return &Handler{
		intake:  intake,
		orders:  orders,
		gateway: gateway,
	}
}

// Register mounts all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/orders", h.submitOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("GET /api/orders/{id}/events", h.streamOrderEvents)
	mux.HandleFunc("POST /api/test/trigger-error", h.triggerError)
	mux.HandleFunc("POST /internal/order-events", h.pushOrderEvent)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorResponse is the common JSON error body. The trace id is always
// present so a caller can locate the failure in the order record and the
// event trail.
type errorResponse struct {
	Error     string `json:"error"`
	TraceID   string `json:"traceId"`
	OrderID   string `json:"orderId,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	writeJSON(w, status, resp)
}

// traceID returns the trace id injected by the TraceID middleware.
func traceID(r *http.Request) string {
	return httpmiddleware.TraceIDFromContext(r.Context())
}
