package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
)

// RepositoryPort defines data access methods for orders.
type RepositoryPort interface {
	ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error)
	GetOrderByNumber(ctx context.Context, number string) (Order, error)
	CreateOrder(ctx context.Context, order Order) (Order, error)
	UpdateOrder(ctx context.Context, order Order) (Order, error)
	DeleteOrderByNumber(ctx context.Context, number string) error
	UserExists(ctx context.Context, id int64) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, number, name, description, step, state, price, user_id, created_at, updated_at`

// ListOrders returns a page of orders matching the filters plus the total count.
func (r *Repository) ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	perPage := filters.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	const where = `($1 = '' OR number = $1)
		AND ($2::int IS NULL OR step = $2)
		AND ($3::int IS NULL OR state = $3)
		AND ($4::bigint = 0 OR user_id = $4)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE `+where,
		filters.Number, filters.Step, filters.State, filters.UserID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+where+` ORDER BY created_at, id LIMIT $5 OFFSET $6`,
		filters.Number, filters.Step, filters.State, filters.UserID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetOrderByNumber fetches an order by its unique number.
func (r *Repository) GetOrderByNumber(ctx context.Context, number string) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("orders: %q: %w", number, httpx.ErrNotFound)
		}
		return Order{}, err
	}
	return order, nil
}

// CreateOrder inserts a new order.
func (r *Repository) CreateOrder(ctx context.Context, order Order) (Order, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO orders (number, name, description, step, state, price, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+orderColumns,
		order.Number, order.Name, order.Description, order.Step, order.State, order.Price, order.UserID)
	return scanOrder(row)
}

// UpdateOrder replaces the mutable fields of an order.
func (r *Repository) UpdateOrder(ctx context.Context, order Order) (Order, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET name = $2, description = $3, step = $4, state = $5, price = $6, user_id = $7, updated_at = now()
		WHERE number = $1
		RETURNING `+orderColumns,
		order.Number, order.Name, order.Description, order.Step, order.State, order.Price, order.UserID)
	updated, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("orders: %q: %w", order.Number, httpx.ErrNotFound)
		}
		return Order{}, err
	}
	return updated, nil
}

// DeleteOrderByNumber removes an order.
func (r *Repository) DeleteOrderByNumber(ctx context.Context, number string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE number = $1`, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("orders: %q: %w", number, httpx.ErrNotFound)
	}
	return nil
}

// UserExists reports whether a user row exists.
func (r *Repository) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.Name, &o.Description, &o.Step, &o.State, &o.Price, &o.UserID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

var _ RepositoryPort = (*Repository)(nil)
