package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// HTTPNotifier pushes terminal notices to the order API's internal endpoint,
// which forwards them to the in-process gateway holding the subscriber. Used
// by the worker binaries, which do not host subscribers themselves.
type HTTPNotifier struct {
	endpoint string
	client   *http.Client
}

var _ Notifier = (*HTTPNotifier)(nil)

// NewHTTPNotifier creates a notifier targeting the order API base URL.
func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/internal/order-events",
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts the notice. Delivery is best-effort: a failed push is logged
// by the caller but must not fail the message handling that triggered it.
func (n *HTTPNotifier) Notify(ctx context.Context, notice Notice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return errors.Wrap(err, "marshal notice")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post notice")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		zctx.From(ctx).Warn("Order API rejected notice",
			zap.String("orderId", notice.OrderID),
			zap.String("status", string(notice.Status)),
			zap.Int("statusCode", resp.StatusCode),
		)
		return errors.Errorf("order api returned %d", resp.StatusCode)
	}
	return nil
}
