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

const productColumns = `id, name, description, price, stock, category, vendor_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Stock,
		&p.Category,
		&p.VendorID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (t *sqlTx) CreateProduct(ctx context.Context, p *domain.Product) error {
	id, err := t.insert(ctx,
		`INSERT INTO products (name, description, price, stock, category, vendor_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.Name, p.Description, p.Price, p.Stock, p.Category, p.VendorID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	p.ID = id
	return nil
}

func (t *sqlTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(t.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", err)
	}
	return p, nil
}

func (t *sqlTx) ListProducts(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where = append(where, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, strings.ToLower(f.Category))
		where = append(where, fmt.Sprintf("LOWER(category) = $%d", len(args)))
	}
	if f.VendorID != 0 {
		args = append(args, f.VendorID)
		where = append(where, fmt.Sprintf("vendor_id = $%d", len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (t *sqlTx) UpdateProduct(ctx context.Context, p *domain.Product) error {
	res, err := t.exec(ctx,
		`UPDATE products SET name = $1, description = $2, price = $3, stock = $4, category = $5, vendor_id = $6, updated_at = $7
		 WHERE id = $8`,
		p.Name, p.Description, p.Price, p.Stock, p.Category, p.VendorID, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectRows(res)
}

func (t *sqlTx) DeleteProduct(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return expectRows(res)
}

func (t *sqlTx) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := t.query(ctx, `SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (t *sqlTx) ProductInOrders(ctx context.Context, productID int64) (bool, error) {
	var n int
	err := t.queryRow(ctx, `SELECT COUNT(*) FROM order_items WHERE product_id = $1`, productID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count order items: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) ReserveStock(ctx context.Context, productID int64, qty int) error {
	if qty < 1 {
		return domain.ErrInvalidQuantity
	}
	res, err := t.exec(ctx,
		`UPDATE products SET stock = stock - $1, updated_at = $2 WHERE id = $3 AND stock >= $4`,
		qty, time.Now().UTC(), productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := t.GetProduct(ctx, productID); err != nil {
		return err
	}
	return &domain.InsufficientStockError{ProductID: productID, Requested: qty}
}
