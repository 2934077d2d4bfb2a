// Package queue carries sync work over Redis via asynq: on-demand
// enqueues, cron registration for recurring jobs, and the worker-side
// handler that drives the engine.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/unionhall/integration-hub/models"
)

// Task types
const (
	TypeSyncRun = "sync:run"
)

const queueName = "sync"

// SyncPayload identifies which sync a task should run.
type SyncPayload struct {
	OrgID    string          `json:"org_id"`
	Provider models.Provider `json:"provider"`
	SyncType models.SyncType `json:"sync_type"`
}

// NewSyncTask builds the asynq task for one sync run. Retries are
// disabled at the queue level: recurrence and the in-progress guard
// own re-execution semantics.
func NewSyncTask(payload SyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling sync payload: %w", err)
	}

	return asynq.NewTask(TypeSyncRun, data, asynq.MaxRetry(0), asynq.Queue(queueName)), nil
}
