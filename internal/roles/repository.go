package roles

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

// TxPort exposes association mutations scoped to one role whose row is
// locked for the duration of the transaction. All writes through a TxPort
// commit or roll back together.
type TxPort interface {
	// Role returns the locked role row as read at transaction start.
	Role() Role
	PermissionIDs(ctx context.Context) ([]int64, error)
	UserIDs(ctx context.Context) ([]int64, error)
	CountUsers(ctx context.Context) (int, error)
	// ResolvePermissionIDs filters the requested ids down to ones that exist
	// in the permissions table. Unknown ids are dropped, not errors.
	ResolvePermissionIDs(ctx context.Context, ids []int64) ([]int64, error)
	ResolveUserIDs(ctx context.Context, ids []int64) ([]int64, error)
	AddPermissions(ctx context.Context, ids []int64) error
	RemovePermissions(ctx context.Context, ids []int64) error
	AddUsers(ctx context.Context, ids []int64) error
	RemoveUsers(ctx context.Context, ids []int64) error
	// UpdateRole replaces the scalar fields of the locked role, so a scalar
	// change and an association overwrite commit or roll back together.
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context) error
}

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByCode(ctx context.Context, code string) (Role, error)
	RoleExistsByNameOrCode(ctx context.Context, name, code string, excludeID int64) (bool, error)
	ListRoles(ctx context.Context, filters ListFilters) ([]Role, int, error)
	ListRolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	ListRoleUserIDs(ctx context.Context, roleID int64) ([]int64, error)
	// WithRole runs fn inside a transaction holding a row lock on the role,
	// serializing mutations of the same role against each other and against
	// role deletion. Mutations of different roles do not block each other.
	WithRole(ctx context.Context, roleID int64, fn func(context.Context, TxPort) error) error
	// WithNewRole inserts the role and runs fn against it inside the same
	// transaction, so the row and its initial edges commit together.
	WithNewRole(ctx context.Context, role Role, fn func(context.Context, TxPort) error) (Role, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, code, description, enable, created_at, updated_at`

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("roles: %d: %w", id, httpx.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoleByCode fetches a role by its unique code.
func (r *Repository) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE code = $1`, code)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("roles: code %q: %w", code, httpx.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// RoleExistsByNameOrCode reports whether another role already claims the
// name or the code.
func (r *Repository) RoleExistsByNameOrCode(ctx context.Context, name, code string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM roles WHERE (name = $1 OR code = $2) AND id <> $3)`,
		name, code, excludeID).Scan(&exists)
	return exists, err
}

// ListRoles returns a page of roles matching the filters plus the total count.
func (r *Repository) ListRoles(ctx context.Context, filters ListFilters) ([]Role, int, error) {
	perPage := filters.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM roles WHERE name ILIKE '%' || $1 || '%' AND ($2::bool IS NULL OR enable = $2)`,
		filters.Name, filters.Enable).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles
		 WHERE name ILIKE '%' || $1 || '%' AND ($2::bool IS NULL OR enable = $2)
		 ORDER BY id
		 LIMIT $3 OFFSET $4`,
		filters.Name, filters.Enable, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListRolePermissionIDs returns the role's explicit permission edge set.
func (r *Repository) ListRolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return queryIDs(ctx, r.pool,
		`SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
}

// ListRoleUserIDs returns the role's user edge set.
func (r *Repository) ListRoleUserIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return queryIDs(ctx, r.pool,
		`SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
}

// WithRole locks the role row and runs fn.
func (r *Repository) WithRole(ctx context.Context, roleID int64, fn func(context.Context, TxPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 FOR UPDATE`, roleID)
		role, err := scanRole(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("roles: %d: %w", roleID, httpx.ErrNotFound)
			}
			return err
		}
		return fn(ctx, &txRepository{tx: tx, role: role})
	})
}

// WithNewRole inserts the role and runs fn against it in the same transaction.
func (r *Repository) WithNewRole(ctx context.Context, role Role, fn func(context.Context, TxPort) error) (Role, error) {
	var created Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO roles (name, code, description, enable)
			VALUES ($1, $2, $3, $4)
			RETURNING `+roleColumns,
			role.Name, role.Code, role.Description, role.Enable)
		inserted, err := scanRole(row)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("roles: name or code taken: %w", httpx.ErrDuplicate)
			}
			return err
		}
		created = inserted
		return fn(ctx, &txRepository{tx: tx, role: inserted})
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

type txRepository struct {
	tx   pgx.Tx
	role Role
}

func (t *txRepository) Role() Role { return t.role }

func (t *txRepository) PermissionIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, t.tx,
		`SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, t.role.ID)
}

func (t *txRepository) UserIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, t.tx,
		`SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, t.role.ID)
}

func (t *txRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, description = $3, enable = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+roleColumns,
		t.role.ID, role.Name, role.Description, role.Enable)
	updated, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("roles: name taken: %w", httpx.ErrDuplicate)
		}
		return Role{}, err
	}
	t.role = updated
	return updated, nil
}

func (t *txRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM user_roles WHERE role_id = $1`, t.role.ID).Scan(&n)
	return n, err
}

func (t *txRepository) ResolvePermissionIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return queryIDs(ctx, t.tx,
		`SELECT id FROM permissions WHERE id = ANY($1) ORDER BY id`, ids)
}

func (t *txRepository) ResolveUserIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return queryIDs(ctx, t.tx,
		`SELECT id FROM users WHERE id = ANY($1) ORDER BY id`, ids)
}

func (t *txRepository) AddPermissions(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			t.role.ID, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) RemovePermissions(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = ANY($2)`, t.role.ID, ids)
	return err
}

func (t *txRepository) AddUsers(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, t.role.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) RemoveUsers(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx,
		`DELETE FROM user_roles WHERE role_id = $1 AND user_id = ANY($2)`, t.role.ID, ids)
	return err
}

func (t *txRepository) DeleteRole(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, t.role.ID); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, t.role.ID); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, t.role.ID)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryIDs(ctx context.Context, q querier, sql string, args ...any) ([]int64, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Code, &role.Description, &role.Enable, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ RepositoryPort = (*Repository)(nil)
var _ TxPort = (*txRepository)(nil)
