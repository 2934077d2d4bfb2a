package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/engine"
	"github.com/unionhall/integration-hub/models"
)

// Handler processes queued sync tasks on the worker side.
type Handler struct {
	engine *engine.Engine
	logger *zap.Logger
}

func NewHandler(eng *engine.Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: eng, logger: logger}
}

// Mux returns the task router for the worker server.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSyncRun, h.handleSyncRun)

	return mux
}

// handleSyncRun drives one scheduled or on-demand sync. Outcomes that
// a retry cannot fix (sync already running, config removed or
// disabled) complete the task instead of failing it.
func (h *Handler) handleSyncRun(ctx context.Context, task *asynq.Task) error {
	var payload SyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling sync payload: %v: %w", err, asynq.SkipRetry)
	}

	_, err := h.engine.ExecuteSync(ctx, payload.OrgID, payload.Provider, models.SyncOptions{
		Type: payload.SyncType,
	})
	if err != nil {
		switch models.ErrorCodeOf(err) {
		case models.CodeSyncInProgress:
			h.logger.Warn("sync already in progress, skipping",
				zap.String("org_id", payload.OrgID),
				zap.String("provider", string(payload.Provider)))
			return nil
		case models.CodeConfigNotFound, models.CodeIntegrationDisabled,
			models.CodeUnknownProvider, models.CodeProviderUnavailable,
			models.CodeNotImplemented:
			h.logger.Error("sync not runnable, dropping task",
				zap.String("org_id", payload.OrgID),
				zap.String("provider", string(payload.Provider)),
				zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			return err
		}
	}

	return nil
}
