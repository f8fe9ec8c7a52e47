// Package notify implements the terminal-status push handshake back to the
// originating client.
//
// The gateway is deliberately best-effort, in-memory, and single-instance:
// it does not survive restarts and does not replicate across instances. The
// Notifier interface keeps the contract swappable for a distributed
// implementation.
package notify

import (
	"context"
	"sync"

	"github.com/avoropaev/marketplace/internal/domain/order"
)

// Notice is the single terminal push delivered to a subscriber.
type Notice struct {
	OrderID string       `json:"orderId"`
	Status  order.Status `json:"status"`
	Detail  string       `json:"detail,omitempty"`
}

// Notifier is the capability used by workers to push a terminal notice.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Gateway holds at most one pending subscriber per order id and delivers
// exactly one terminal notice. A notice for an order without a subscriber is
// dropped; late subscribers observe nothing and should poll the order instead.
type Gateway struct {
	mu   sync.Mutex
	subs map[string]chan Notice
}

var _ Notifier = (*Gateway)(nil)

// NewGateway creates an empty gateway.
func NewGateway() *Gateway {
	return &Gateway{subs: make(map[string]chan Notice)}
}

// Subscribe registers a waiting channel for the order id. A second subscribe
// for the same id replaces the prior entry: the old channel is abandoned
// (closed without a notice) and the new subscriber wins.
func (g *Gateway) Subscribe(orderID string) <-chan Notice {
	ch := make(chan Notice, 1)

	g.mu.Lock()
	if old, ok := g.subs[orderID]; ok {
		close(old)
	}
	g.subs[orderID] = ch
	g.mu.Unlock()

	return ch
}

// Unsubscribe removes the registration without delivering. Called on
// transport-level disconnect of the subscriber. The channel identity guards
// against removing a newer subscriber that already replaced this one.
func (g *Gateway) Unsubscribe(orderID string, ch <-chan Notice) {
	g.mu.Lock()
	if cur, ok := g.subs[orderID]; ok && cur == ch {
		delete(g.subs, orderID)
	}
	g.mu.Unlock()
}

// Notify delivers the notice to the pending subscriber, if any, and removes
// the registration. Without a subscriber the notice is dropped: no buffering,
// no redelivery.
func (g *Gateway) Notify(_ context.Context, n Notice) error {
	g.mu.Lock()
	ch, ok := g.subs[n.OrderID]
	if ok {
		delete(g.subs, n.OrderID)
	}
	g.mu.Unlock()

	if ok {
		ch <- n
		close(ch)
	}
	return nil
}
