package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
)

// PermissionInvalidator drops cached permission levels.
type PermissionInvalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
}

// PermissionInvalidationJob flushes the shared permission cache after matrix
// changes so every instance re-resolves.
type PermissionInvalidationJob struct {
	Permissions PermissionInvalidator
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewPermissionInvalidationJob wires the invalidation handler.
func NewPermissionInvalidationJob(perms PermissionInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionInvalidationJob {
	return &PermissionInvalidationJob{Permissions: perms, Logger: logger, Metrics: metrics}
}

// Handle processes permission invalidation tasks.
func (j *PermissionInvalidationJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Permissions == nil {
		return errors.New("permission invalidation: handler not configured")
	}
	var payload PermissionsInvalidatePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskPermissionsInvalidate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := loggerOrDefault(j.Logger).With(slog.Int64("user_id", payload.UserID))
	var err error
	if payload.UserID > 0 {
		err = j.Permissions.InvalidateUser(ctx, payload.UserID)
	} else {
		err = j.Permissions.InvalidateAll(ctx)
	}
	if err != nil {
		logger.Error("invalidate permission cache", slog.Any("error", err))
		return err
	}
	metricsOrDefault(j.Metrics).AddItems(TaskPermissionsInvalidate, 1)
	logger.Info("permission cache invalidated")
	return nil
}
