package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/procurement-portal/internal/budget"
	"github.com/odyssey-erp/procurement-portal/internal/periods"
	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) ShareOpenPeriod(ctx context.Context) (int64, error) {
	period, err := periods.ShareOpen(ctx, t.tx)
	if err != nil {
		if errors.Is(err, periods.ErrNoActivePeriod) {
			return 0, ErrPeriodClosed
		}
		return 0, err
	}
	return period.ID, nil
}

func (t *txRepo) LoadClient(ctx context.Context, id int64) (ClientSnapshot, error) {
	var c ClientSnapshot
	err := t.tx.QueryRow(ctx, `SELECT id, name, legal_entity, address FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.LegalEntity, &c.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientSnapshot{}, ErrNotFound
		}
		return ClientSnapshot{}, fmt.Errorf("orders: load client: %w", err)
	}
	return c, nil
}

func (t *txRepo) LoadProducts(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, name, price, unit FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("orders: load products: %w", err)
	}
	defer rows.Close()
	products := make(map[int64]ProductSnapshot, len(ids))
	for rows.Next() {
		var p ProductSnapshot
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Unit); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

func (t *txRepo) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO orders (client_id, client_name, legal_entity, address, total, status, is_locked, period_id)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7) RETURNING id`,
		o.ClientID, o.ClientName, o.LegalEntity, o.Address, o.Total, string(o.Status), o.PeriodID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("orders: insert: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertItems(ctx context.Context, orderID int64, items []Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, product_name, quantity, price, unit) VALUES ($1, $2, $3, $4, $5, $6)`,
			orderID, it.ProductID, it.ProductName, it.Quantity, it.Price, it.Unit)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("orders: insert items: %w", err)
	}
	return nil
}

func (t *txRepo) LockOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	var status string
	err := t.tx.QueryRow(ctx, `SELECT id, client_id, total, status, is_locked, period_id FROM orders WHERE id = $1 FOR UPDATE`, id).
		Scan(&o.ID, &o.ClientID, &o.Total, &status, &o.IsLocked, &o.PeriodID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("orders: lock: %w", err)
	}
	o.Status = Status(status)
	return o, nil
}

func (t *txRepo) SetDecision(ctx context.Context, id int64, status Status, at time.Time, by *int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2, approved_at = $3, approved_by = $4, updated_at = $3 WHERE id = $1`, id, string(status), at, by)
	if err != nil {
		return fmt.Errorf("orders: set decision: %w", err)
	}
	return nil
}

func (t *txRepo) Ledger() budget.Store {
	return budget.NewTxStore(t.tx)
}

func (t *txRepo) Idempotency() IdempotencyPort {
	return shared.NewTxIdempotencyStore(t.tx)
}
