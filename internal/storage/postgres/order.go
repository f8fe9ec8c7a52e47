package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avoropaev/marketplace/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const (
	createOrderSQL = `INSERT INTO orders (id, trace_id, status, amount_cents, items, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`

	getOrderSQL = `SELECT id, trace_id, status, amount_cents, items, error_message, created_at, updated_at
	FROM orders WHERE id = $1`

	// The status guards mirror the monotonic lifecycle: sent_to_payment only
	// follows created, and a settled order is never rewritten. A redelivered
	// message that lost the race becomes a no-op instead of a backward move.
	setSentSQL = `UPDATE orders SET status = $2, updated_at = NOW()
	WHERE id = $1 AND status = 'created'`

	setTerminalSQL = `UPDATE orders SET status = $2, updated_at = NOW()
	WHERE id = $1 AND status NOT IN ('paid', 'payment_failed')`

	setFailedSQL = `UPDATE orders SET status = $2, error_message = $3, updated_at = NOW()
	WHERE id = $1 AND status NOT IN ('paid', 'payment_failed')`

	getStatusSQL = `SELECT status FROM orders WHERE id = $1`
)

// uniqueViolation is the PostgreSQL error code for duplicate primary keys.
const uniqueViolation = "23505"

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order in status created. Items are serialized to JSON
// for the JSONB column. A duplicate id maps to order.ErrAlreadyExists so the
// ingestion worker can treat redelivery as already-created.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.TraceID, order.StatusCreated, o.AmountCents, itemsJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return order.ErrAlreadyExists
		}
		return errors.Wrapf(err, "create order %q", o.ID)
	}

	return nil
}

// GetByID returns the full order projection or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		errMsg    *string
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.TraceID, &o.Status, &o.AmountCents, &itemsJSON, &errMsg, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, errors.Wrapf(err, "unmarshal items of order %q", id)
	}
	if errMsg != nil {
		o.ErrorMessage = *errMsg
	}
	return &o, nil
}

// SetSentToPayment advances the order to sent_to_payment. An order that
// already moved past created is left untouched.
func (r *OrderRepository) SetSentToPayment(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, setSentSQL, order.StatusSentToPayment)
}

// SetPaid finalizes the order as paid.
func (r *OrderRepository) SetPaid(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, setTerminalSQL, order.StatusPaid)
}

// SetPaymentFailed finalizes the order as payment_failed with the error detail.
func (r *OrderRepository) SetPaymentFailed(ctx context.Context, id string, errorMessage string) error {
	tag, err := r.pool.Exec(ctx, setFailedSQL, id, order.StatusPaymentFailed, errorMessage)
	if err != nil {
		return errors.Wrapf(err, "set order %q payment_failed", id)
	}
	if tag.RowsAffected() == 0 {
		return r.explainMiss(ctx, id)
	}
	return nil
}

func (r *OrderRepository) setStatus(ctx context.Context, id, sql string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, sql, id, status)
	if err != nil {
		return errors.Wrapf(err, "set order %q status %s", id, status)
	}
	if tag.RowsAffected() == 0 {
		return r.explainMiss(ctx, id)
	}
	return nil
}

// explainMiss distinguishes an unknown order from one whose status already
// passed the guard. The latter is a redelivery artifact and succeeds as a
// no-op.
func (r *OrderRepository) explainMiss(ctx context.Context, id string) error {
	var cur order.Status
	err := r.pool.QueryRow(ctx, getStatusSQL, id).Scan(&cur)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return errors.Wrapf(err, "check order %q status", id)
	}
	return nil
}
