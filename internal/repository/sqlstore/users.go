package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
)

const userColumns = `u.id, u.email, u.full_name, u.role, u.deleted, u.password_hash, u.created_at`

func scanUser(row scanner) (*domain.User, error) {
	u := &domain.User{}
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &role, &u.Deleted, &u.PasswordHash, &u.CreatedAt)
	u.Role = domain.Role(role)
	return u, err
}

func (t *sqlTx) CreateUser(ctx context.Context, u *domain.User) error {
	u.Email = domain.NormalizeEmail(u.Email)
	id, err := t.insert(ctx,
		`INSERT INTO users (email, full_name, role, deleted, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.Email, u.FullName, string(u.Role), u.Deleted, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

func (t *sqlTx) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	u, err := scanUser(t.queryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (t *sqlTx) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return t.getUser(ctx, `u.id = $1`, id)
}

func (t *sqlTx) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return t.getUser(ctx, `u.email = $1`, domain.NormalizeEmail(email))
}

func (t *sqlTx) ListUsers(ctx context.Context, f repository.UserFilter) ([]domain.User, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, string(f.Role))
		where = append(where, fmt.Sprintf("u.role = $%d", len(args)))
	}
	if !f.IncludeDeleted {
		where = append(where, "NOT u.deleted")
	}
	if q := strings.TrimSpace(f.ProductQuery); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM products p WHERE p.vendor_id = u.id AND LOWER(p.name) LIKE $%d)", len(args)))
	}

	query := `SELECT ` + userColumns + ` FROM users u`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY u.id`

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return users, nil
}

func (t *sqlTx) UpdateUser(ctx context.Context, u *domain.User) error {
	u.Email = domain.NormalizeEmail(u.Email)
	res, err := t.exec(ctx,
		`UPDATE users SET email = $1, full_name = $2, role = $3, deleted = $4, password_hash = $5 WHERE id = $6`,
		u.Email, u.FullName, string(u.Role), u.Deleted, u.PasswordHash, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectRows(res)
}
