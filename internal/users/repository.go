package users

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

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	// CreateUser inserts the user row, its profile and its role edges in one
	// transaction, so a failed edge write leaves no half-created account.
	CreateUser(ctx context.Context, user User, roleIDs []int64) (User, error)
	// UpdateUser toggles the enable flag and, when roleIDs is non-nil,
	// overwrites the role association set, atomically.
	UpdateUser(ctx context.Context, id int64, enable bool, roleIDs []int64) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	DeleteUser(ctx context.Context, id int64) error
	UserRoles(ctx context.Context, userID int64) ([]RoleRef, error)
	UserRoleCodes(ctx context.Context, userID int64) ([]string, error)
	GetProfile(ctx context.Context, userID int64) (Profile, error)
	UpdateProfile(ctx context.Context, profile Profile) (Profile, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, password_hash, enable, created_at, updated_at`

// ListUsers returns a page of users matching the filters plus the total count.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
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
		`SELECT count(*) FROM users WHERE username ILIKE '%' || $1 || '%' AND ($2::bool IS NULL OR enable = $2)`,
		filters.Username, filters.Enable).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE username ILIKE '%' || $1 || '%' AND ($2::bool IS NULL OR enable = $2)
		 ORDER BY id
		 LIMIT $3 OFFSET $4`,
		filters.Username, filters.Enable, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetUser fetches a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("users: %d: %w", id, httpx.ErrNotFound)
		}
		return User{}, err
	}
	return user, nil
}

// GetUserByUsername fetches a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("users: %q: %w", username, httpx.ErrNotFound)
		}
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts a new user with an empty profile row and its initial
// role edges, all in one transaction.
func (r *Repository) CreateUser(ctx context.Context, user User, roleIDs []int64) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO users (username, password_hash, enable)
			VALUES ($1, $2, $3)
			RETURNING `+userColumns,
			user.Username, user.PasswordHash, user.Enable)
		var err error
		created, err = scanUser(row)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("users: username %q taken: %w", user.Username, httpx.ErrDuplicate)
			}
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO profiles (user_id) VALUES ($1)`, created.ID); err != nil {
			return err
		}
		return replaceUserRoles(ctx, tx, created.ID, roleIDs)
	})
	if err != nil {
		return User{}, err
	}
	return created, nil
}

// UpdateUser toggles the enable flag and, when roleIDs is non-nil, overwrites
// the role association set inside the same transaction.
func (r *Repository) UpdateUser(ctx context.Context, id int64, enable bool, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET enable = $2, updated_at = now() WHERE id = $1`, id, enable)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("users: %d: %w", id, httpx.ErrNotFound)
		}
		if roleIDs == nil {
			return nil
		}
		return replaceUserRoles(ctx, tx, id, roleIDs)
	})
}

// SetPasswordHash replaces the stored password hash.
func (r *Repository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("users: %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

// DeleteUser removes a user, its profile and its association edges. Orders
// keep their rows with the owner reference cleared.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE orders SET user_id = NULL WHERE user_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("users: %d: %w", id, httpx.ErrNotFound)
		}
		return nil
	})
}

// UserRoles returns the roles associated with a user.
func (r *Repository) UserRoles(ctx context.Context, userID int64) ([]RoleRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.code, r.enable
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleRef
	for rows.Next() {
		var ref RoleRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Code, &ref.Enable); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// UserRoleCodes returns the user's current effective role-code set.
func (r *Repository) UserRoleCodes(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.code
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// replaceUserRoles overwrites the user's role association set within the
// caller's transaction. Unknown role ids are dropped.
func replaceUserRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id)
			SELECT $1, id FROM roles WHERE id = $2
			ON CONFLICT DO NOTHING`, userID, roleID); err != nil {
			return err
		}
	}
	return nil
}

// GetProfile fetches the user's profile.
func (r *Repository) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, nickname, gender, avatar, address, email FROM profiles WHERE user_id = $1`,
		userID).Scan(&p.UserID, &p.NickName, &p.Gender, &p.Avatar, &p.Address, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("users: profile %d: %w", userID, httpx.ErrNotFound)
		}
		return Profile{}, err
	}
	return p, nil
}

// UpdateProfile replaces the profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, profile Profile) (Profile, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE profiles
		SET nickname = $2, gender = $3, avatar = $4, address = $5, email = $6
		WHERE user_id = $1
		RETURNING user_id, nickname, gender, avatar, address, email`,
		profile.UserID, profile.NickName, profile.Gender, profile.Avatar, profile.Address, profile.Email)
	var p Profile
	if err := row.Scan(&p.UserID, &p.NickName, &p.Gender, &p.Avatar, &p.Address, &p.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("users: profile %d: %w", profile.UserID, httpx.ErrNotFound)
		}
		return Profile{}, err
	}
	return p, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Enable, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ RepositoryPort = (*Repository)(nil)
