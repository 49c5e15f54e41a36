package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLoginRecordsPrune is the task type for purging old login audit rows.
	TaskLoginRecordsPrune = "auth:prune_login_records"
)

// LoginRecordsPrunePayload carries the retention window for the prune task.
type LoginRecordsPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewLoginRecordsPruneTask constructs an Asynq task.
func NewLoginRecordsPruneTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(LoginRecordsPrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoginRecordsPrune, data), nil
}

// LoginRecordPruner deletes login audit rows older than the cutoff.
type LoginRecordPruner interface {
	PruneLoginRecords(ctx context.Context, before time.Time) (int64, error)
}

// NewLoginRecordsPruneHandler returns the worker handler for
// TaskLoginRecordsPrune tasks.
func NewLoginRecordsPruneHandler(pruner LoginRecordPruner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LoginRecordsPrunePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			return asynq.SkipRetry
		}
		cutoff := time.Now().UTC().Add(-payload.Retention)
		removed, err := pruner.PruneLoginRecords(ctx, cutoff)
		if err != nil {
			logger.Error("prune login records", slog.Any("error", err))
			return err
		}
		logger.Info("pruned login records",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
		return nil
	}
}
