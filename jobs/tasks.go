package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/chambers-pm/chambers/internal/observability"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSuperadminSync re-derives superadmin's grants from the permission universe.
	TaskSuperadminSync = "rbac:superadmin_sync"
	// TaskSessionPurge deletes expired session audit rows.
	TaskSessionPurge = "auth:session_purge"
)

// SuperadminSyncer is satisfied by rbac.Service.
type SuperadminSyncer interface {
	SyncSuperadmin(ctx context.Context) (int64, error)
}

// SessionPurger is satisfied by auth.Service.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SuperadminSyncPayload records why a sync was requested.
type SuperadminSyncPayload struct {
	Reason string `json:"reason"`
}

// NewSuperadminSyncTask constructs an Asynq task.
func NewSuperadminSyncTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(SuperadminSyncPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSuperadminSync, data, asynq.MaxRetry(5), asynq.Timeout(time.Minute)), nil
}

// NewSessionPurgeTask constructs an Asynq task.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPurge, nil, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute))
}

// SuperadminSyncHandler processes TaskSuperadminSync tasks.
func SuperadminSyncHandler(syncer SuperadminSyncer, logger *slog.Logger, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SuperadminSyncPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				metrics.ObserveJob(TaskSuperadminSync, err)
				return asynq.SkipRetry
			}
		}
		added, err := syncer.SyncSuperadmin(ctx)
		metrics.ObserveJob(TaskSuperadminSync, err)
		if err != nil {
			logger.Error("superadmin sync", slog.String("reason", payload.Reason), slog.Any("error", err))
			return err
		}
		logger.Info("superadmin sync done", slog.String("job", TaskSuperadminSync), slog.String("reason", payload.Reason), slog.Int64("added", added))
		return nil
	}
}

// SessionPurgeHandler processes TaskSessionPurge tasks.
func SessionPurgeHandler(purger SessionPurger, now func() time.Time, logger *slog.Logger, metrics *observability.Metrics) asynq.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := purger.PurgeExpired(ctx, now())
		metrics.ObserveJob(TaskSessionPurge, err)
		if err != nil {
			logger.Error("purge sessions", slog.Any("error", err))
			return err
		}
		logger.Info("purged sessions", slog.String("job", TaskSessionPurge), slog.Int64("removed", removed))
		return nil
	}
}
