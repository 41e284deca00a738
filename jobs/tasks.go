package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuotationsExpire expires submitted quotations past their validity.
	TaskQuotationsExpire = "quotations:expire"
	// TaskMaintenanceCleanup purges stale idempotency keys.
	TaskMaintenanceCleanup = "maintenance:cleanup"
	// TaskPermissionsInvalidate flushes cached permission levels.
	TaskPermissionsInvalidate = "permissions:invalidate"
)

// PermissionsInvalidatePayload scopes a cache flush. UserID 0 flushes every user.
type PermissionsInvalidatePayload struct {
	UserID int64 `json:"user_id"`
}

// NewQuotationsExpireTask constructs the expiry task.
func NewQuotationsExpireTask() *asynq.Task {
	return asynq.NewTask(TaskQuotationsExpire, nil)
}

// NewMaintenanceCleanupTask constructs the cleanup task.
func NewMaintenanceCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskMaintenanceCleanup, nil)
}

// NewPermissionsInvalidateTask constructs a cache flush task.
func NewPermissionsInvalidateTask(payload PermissionsInvalidatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsInvalidate, data), nil
}
