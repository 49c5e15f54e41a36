package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LoginRecorder persists the login audit trail.
type LoginRecorder interface {
	CreateLoginRecord(ctx context.Context, userID int64, ip, ua string) error
}

// PGRepository implements LoginRecorder using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateLoginRecord stores one successful login for auditing.
func (r *PGRepository) CreateLoginRecord(ctx context.Context, userID int64, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO login_records (user_id, ip, user_agent) VALUES ($1, $2, $3)`,
		userID, ip, ua)
	return err
}

// PruneLoginRecords deletes audit rows older than the cutoff and returns
// how many were removed. The background worker calls this on a schedule.
func (r *PGRepository) PruneLoginRecords(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_records WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ LoginRecorder = (*PGRepository)(nil)
