package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
)

// DefaultIdempotencyRetention is used when no retention is configured.
const DefaultIdempotencyRetention = 7 * 24 * time.Hour

// IdempotencyCleaner purges processed request keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob deletes idempotency keys older than the retention window.
type CleanupJob struct {
	Store     IdempotencyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewCleanupJob wires the maintenance cleanup handler.
func NewCleanupJob(store IdempotencyCleaner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *CleanupJob {
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}
	return &CleanupJob{Store: store, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle processes maintenance cleanup tasks.
func (j *CleanupJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("maintenance cleanup: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskMaintenanceCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Store.Cleanup(ctx, j.Retention)
	if err != nil {
		loggerOrDefault(j.Logger).Error("cleanup idempotency keys", slog.Any("error", err))
		return err
	}
	metricsOrDefault(j.Metrics).AddItems(TaskMaintenanceCleanup, removed)
	loggerOrDefault(j.Logger).Info("completed maintenance cleanup", slog.Int64("removed", removed), slog.Duration("retention", j.Retention))
	return nil
}
