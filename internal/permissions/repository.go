package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nova-admin/nova-admin/internal/platform/db"
	"github.com/nova-admin/nova-admin/internal/platform/httpx"
)

// RepositoryPort defines data access methods for permissions.
type RepositoryPort interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListByRoleID(ctx context.Context, roleID int64) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	UpdatePermission(ctx context.Context, p Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `id, name, code, type, parent_id, path, icon, ord, enable, description`

// ListPermissions returns the full permission set ordered by ord then id.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY ord, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ListByRoleID returns the permissions explicitly associated with a role.
func (r *Repository) ListByRoleID(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.code, p.type, p.parent_id, p.path, p.icon, p.ord, p.enable, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.ord, p.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// GetPermission fetches a permission by ID.
func (r *Repository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	p, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("permissions: %d: %w", id, httpx.ErrNotFound)
		}
		return Permission{}, err
	}
	return p, nil
}

// CreatePermission inserts a new permission.
func (r *Repository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, code, type, parent_id, path, icon, ord, enable, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+permissionColumns,
		p.Name, p.Code, p.Type, p.ParentID, p.Path, p.Icon, p.Order, p.Enable, p.Description)
	created, err := scanPermission(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Permission{}, fmt.Errorf("permissions: code %q: %w", p.Code, httpx.ErrDuplicate)
		}
		return Permission{}, err
	}
	return created, nil
}

// UpdatePermission replaces the mutable fields of a permission.
func (r *Repository) UpdatePermission(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE permissions
		SET name = $2, code = $3, type = $4, parent_id = $5, path = $6, icon = $7, ord = $8, enable = $9, description = $10
		WHERE id = $1
		RETURNING `+permissionColumns,
		p.ID, p.Name, p.Code, p.Type, p.ParentID, p.Path, p.Icon, p.Order, p.Enable, p.Description)
	updated, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("permissions: %d: %w", p.ID, httpx.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return Permission{}, fmt.Errorf("permissions: code %q: %w", p.Code, httpx.ErrDuplicate)
		}
		return Permission{}, err
	}
	return updated, nil
}

// DeletePermission removes a permission, its descendants and their role edges.
func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH RECURSIVE doomed AS (
				SELECT id FROM permissions WHERE id = $1
				UNION ALL
				SELECT p.id FROM permissions p JOIN doomed d ON p.parent_id = d.id
			)
			SELECT id FROM doomed`, id)
		if err != nil {
			return err
		}
		var doomed []int64
		for rows.Next() {
			var pid int64
			if err := rows.Scan(&pid); err != nil {
				rows.Close()
				return err
			}
			doomed = append(doomed, pid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(doomed) == 0 {
			return fmt.Errorf("permissions: %d: %w", id, httpx.ErrNotFound)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM role_permissions WHERE permission_id = ANY($1)`, doomed); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM permissions WHERE id = ANY($1)`, doomed)
		return err
	})
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Type, &p.ParentID, &p.Path, &p.Icon, &p.Order, &p.Enable, &p.Description)
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ RepositoryPort = (*Repository)(nil)
