package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoropaev/marketplace/internal/domain/order"
)

func TestHTTPNotifier_Posts(t *testing.T) {
	var (
		gotPath string
		gotBody Notice
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewHTTPNotifier(server.URL + "/")
	err := n.Notify(context.Background(), Notice{
		OrderID: "order-1",
		Status:  order.StatusPaid,
	})
	require.NoError(t, err)

	assert.Equal(t, "/internal/order-events", gotPath)
	assert.Equal(t, "order-1", gotBody.OrderID)
	assert.Equal(t, order.StatusPaid, gotBody.Status)
}

func TestHTTPNotifier_RejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewHTTPNotifier(server.URL)
	err := n.Notify(context.Background(), Notice{OrderID: "order-1", Status: order.StatusPaid})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestHTTPNotifier_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	server.Close()

	n := NewHTTPNotifier(server.URL)
	err := n.Notify(context.Background(), Notice{OrderID: "order-1", Status: order.StatusPaid})
	assert.Error(t, err)
}
