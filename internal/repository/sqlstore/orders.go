package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
)

const (
	orderColumns    = `o.id, o.customer_id, o.total, o.idempotency_key, o.created_at`
	subOrderColumns = `id, order_id, vendor_id, status, version, created_at, updated_at`
	itemColumns     = `id, order_id, vendor_order_id, product_id, product_name, vendor_id, quantity, price_at_purchase`

	// activePredicate matches orders with at least one non-terminal sub-order.
	activePredicate = `EXISTS (SELECT 1 FROM vendor_orders v WHERE v.order_id = o.id AND v.status NOT IN ('DELIVERED', 'CANCELLED'))`
)

func scanOrder(row scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var key sql.NullString
	if err := row.Scan(&o.ID, &o.CustomerID, &o.Total, &key, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.IdempotencyKey = key.String
	return o, nil
}

func scanSubOrder(row scanner) (*domain.VendorSubOrder, error) {
	so := &domain.VendorSubOrder{}
	var status string
	if err := row.Scan(&so.ID, &so.OrderID, &so.VendorID, &status, &so.Version, &so.CreatedAt, &so.UpdatedAt); err != nil {
		return nil, err
	}
	so.Status = domain.SubOrderStatus(status)
	return so, nil
}

func (t *sqlTx) CreateOrder(ctx context.Context, o *domain.Order) error {
	var key sql.NullString
	if o.IdempotencyKey != "" {
		key = sql.NullString{String: o.IdempotencyKey, Valid: true}
	}
	id, err := t.insert(ctx,
		`INSERT INTO orders (customer_id, total, idempotency_key, created_at) VALUES ($1, $2, $3, $4)`,
		o.CustomerID, o.Total, key, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.ID = id

	subIDs := make(map[int64]int64, len(o.SubOrders))
	for i := range o.SubOrders {
		so := &o.SubOrders[i]
		so.OrderID = o.ID
		soID, err := t.insert(ctx,
			`INSERT INTO vendor_orders (order_id, vendor_id, status, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			so.OrderID, so.VendorID, string(so.Status), so.Version, so.CreatedAt, so.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert vendor order: %w", err)
		}
		so.ID = soID
		subIDs[so.VendorID] = soID
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		it.SubOrderID = subIDs[it.VendorID]
		itemID, err := t.insert(ctx,
			`INSERT INTO order_items (order_id, vendor_order_id, product_id, product_name, vendor_id, quantity, price_at_purchase)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.OrderID, it.SubOrderID, it.ProductID, it.ProductName, it.VendorID, it.Quantity, it.PriceAtPurchase)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
		it.ID = itemID
	}

	for i := range o.SubOrders {
		so := &o.SubOrders[i]
		so.Items = nil
		for _, it := range o.Items {
			if it.SubOrderID == so.ID {
				so.Items = append(so.Items, it)
			}
		}
	}
	return nil
}

func (t *sqlTx) orderItems(ctx context.Context, where string, arg any) ([]domain.OrderItem, error) {
	rows, err := t.query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SubOrderID, &it.ProductID, &it.ProductName,
			&it.VendorID, &it.Quantity, &it.PriceAtPurchase); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (t *sqlTx) subOrders(ctx context.Context, where string, arg any) ([]domain.VendorSubOrder, error) {
	rows, err := t.query(ctx, `SELECT `+subOrderColumns+` FROM vendor_orders WHERE `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("query vendor orders: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.VendorSubOrder, 0)
	for rows.Next() {
		so, err := scanSubOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor order: %w", err)
		}
		subs = append(subs, *so)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return subs, nil
}

// loadDetails attaches items and sub-orders and recomputes the aggregate status.
func (t *sqlTx) loadDetails(ctx context.Context, o *domain.Order) error {
	items, err := t.orderItems(ctx, `order_id = $1`, o.ID)
	if err != nil {
		return err
	}
	subs, err := t.subOrders(ctx, `order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return err
	}
	for i := range subs {
		for _, it := range items {
			if it.SubOrderID == subs[i].ID {
				subs[i].Items = append(subs[i].Items, it)
			}
		}
	}
	o.Items = items
	o.SubOrders = subs
	o.Project()
	return nil
}

func (t *sqlTx) getOrder(ctx context.Context, where string, args ...any) (*domain.Order, error) {
	o, err := scanOrder(t.queryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if err := t.loadDetails(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *sqlTx) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return t.getOrder(ctx, `o.id = $1`, id)
}

func (t *sqlTx) GetOrderByIdempotencyKey(ctx context.Context, customerID int64, key string) (*domain.Order, error) {
	return t.getOrder(ctx, `o.customer_id = $1 AND o.idempotency_key = $2`, customerID, key)
}

func (t *sqlTx) ListOrders(ctx context.Context, f repository.OrderFilter, page repository.Page) ([]domain.Order, int, error) {
	var (
		where []string
		args  []any
	)
	if f.CustomerID != 0 {
		args = append(args, f.CustomerID)
		where = append(where, fmt.Sprintf("o.customer_id = $%d", len(args)))
	}
	switch f.Status {
	case domain.AggregateActive:
		where = append(where, activePredicate)
	case domain.AggregateCompleted:
		where = append(where, "NOT "+activePredicate)
	}

	filter := ""
	if len(where) > 0 {
		filter = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	if err := t.queryRow(ctx, `SELECT COUNT(*) FROM orders o`+filter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders o` + filter + ` ORDER BY o.created_at DESC, o.id DESC`
	if page.Size > 0 {
		args = append(args, page.Size)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, page.Offset())
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	// details are loaded after the cursor is closed; the connection serves one result set at a time
	for i := range orders {
		if err := t.loadDetails(ctx, &orders[i]); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

func (t *sqlTx) GetSubOrder(ctx context.Context, id int64) (*domain.VendorSubOrder, error) {
	so, err := scanSubOrder(t.queryRow(ctx, `SELECT `+subOrderColumns+` FROM vendor_orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query vendor order: %w", err)
	}
	so.Items, err = t.orderItems(ctx, `vendor_order_id = $1`, so.ID)
	if err != nil {
		return nil, err
	}
	return so, nil
}

func (t *sqlTx) ListSubOrdersByVendor(ctx context.Context, vendorID int64) ([]domain.VendorSubOrder, error) {
	subs, err := t.subOrders(ctx, `vendor_id = $1 ORDER BY id DESC`, vendorID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Items, err = t.orderItems(ctx, `vendor_order_id = $1`, subs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return subs, nil
}

func (t *sqlTx) UpdateSubOrderStatus(ctx context.Context, id int64, status domain.SubOrderStatus, expectedVersion int, at time.Time) error {
	res, err := t.exec(ctx,
		`UPDATE vendor_orders SET status = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4`,
		string(status), at, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("update vendor order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := t.GetSubOrder(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: sub-order %d changed concurrently", domain.ErrConflict, id)
}
