package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/fresh_grocery/internal/domain"
)

const cartColumns = `id, customer_id, product_id, quantity, price, added_at`

func scanCartItem(row scanner) (*domain.CartItem, error) {
	it := &domain.CartItem{}
	err := row.Scan(&it.ID, &it.CustomerID, &it.ProductID, &it.Quantity, &it.Price, &it.AddedAt)
	return it, err
}

func (t *sqlTx) LockCart(ctx context.Context, customerID int64) error {
	query := `SELECT id FROM users WHERE id = $1`
	if t.dialect == dialectPostgres {
		// sqlite already runs one writer at a time
		query += ` FOR UPDATE`
	}
	var id int64
	err := t.queryRow(ctx, query, customerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock cart: %w", mapError(err))
	}
	return nil
}

func (t *sqlTx) GetCartItems(ctx context.Context, customerID int64) ([]domain.CartItem, error) {
	rows, err := t.query(ctx, `SELECT `+cartColumns+` FROM cart_items WHERE customer_id = $1 ORDER BY id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (t *sqlTx) cartItem(ctx context.Context, where string, args ...any) (*domain.CartItem, error) {
	it, err := scanCartItem(t.queryRow(ctx, `SELECT `+cartColumns+` FROM cart_items WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart item: %w", err)
	}
	return it, nil
}

func (t *sqlTx) GetCartItem(ctx context.Context, itemID int64) (*domain.CartItem, error) {
	return t.cartItem(ctx, `id = $1`, itemID)
}

func (t *sqlTx) FindCartItem(ctx context.Context, customerID, productID int64) (*domain.CartItem, error) {
	return t.cartItem(ctx, `customer_id = $1 AND product_id = $2`, customerID, productID)
}

func (t *sqlTx) InsertCartItem(ctx context.Context, item *domain.CartItem) error {
	id, err := t.insert(ctx,
		`INSERT INTO cart_items (customer_id, product_id, quantity, price, added_at) VALUES ($1, $2, $3, $4, $5)`,
		item.CustomerID, item.ProductID, item.Quantity, item.Price, item.AddedAt)
	if err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	item.ID = id
	return nil
}

func (t *sqlTx) UpdateCartItemQuantity(ctx context.Context, itemID int64, qty int) error {
	res, err := t.exec(ctx, `UPDATE cart_items SET quantity = $1 WHERE id = $2`, qty, itemID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return expectRows(res)
}

func (t *sqlTx) IncrementCartItemQuantity(ctx context.Context, itemID int64, delta int) (int, error) {
	var qty int
	err := t.queryRow(ctx, `UPDATE cart_items SET quantity = quantity + $1 WHERE id = $2 RETURNING quantity`, delta, itemID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment cart item: %w", mapError(err))
	}
	return qty, nil
}

func (t *sqlTx) DeleteCartItem(ctx context.Context, itemID int64) error {
	res, err := t.exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return expectRows(res)
}

func (t *sqlTx) ClearCart(ctx context.Context, customerID int64) error {
	if _, err := t.exec(ctx, `DELETE FROM cart_items WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteCartItemsByProduct(ctx context.Context, productID int64) ([]int64, error) {
	rows, err := t.query(ctx, `DELETE FROM cart_items WHERE product_id = $1 RETURNING customer_id`, productID)
	if err != nil {
		return nil, fmt.Errorf("delete cart items by product: %w", mapError(err))
	}
	defer rows.Close()

	var customers []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan customer id: %w", err)
		}
		customers = append(customers, id)
	}
	return customers, rows.Err()
}
