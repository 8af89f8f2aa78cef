package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	TaskDashboardWarmup    = "production:dashboard-warmup"
	TaskLPExpiryScan       = "warehouse:lp-expiry-scan"
	TaskIdempotencyCleanup = "platform:idempotency-cleanup"
)

// OrgPayload targets one organisation. A nil OrgID means every active one.
type OrgPayload struct {
	OrgID *uuid.UUID `json:"org_id,omitempty"`
}

// CleanupPayload overrides the configured idempotency retention when set.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewDashboardWarmupTask builds a production:dashboard-warmup task.
func NewDashboardWarmupTask(orgID *uuid.UUID) (*asynq.Task, error) {
	return newTask(TaskDashboardWarmup, OrgPayload{OrgID: orgID})
}

// NewLPExpiryScanTask builds a warehouse:lp-expiry-scan task.
func NewLPExpiryScanTask(orgID *uuid.UUID) (*asynq.Task, error) {
	return newTask(TaskLPExpiryScan, OrgPayload{OrgID: orgID})
}

// NewIdempotencyCleanupTask builds a platform:idempotency-cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{RetentionHours: retentionHours})
}

func newTask(kind string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, data, asynq.MaxRetry(3), asynq.Queue(QueueDefault)), nil
}
