package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/models"
)

// Client enqueues on-demand sync runs.
type Client struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewClient(redisAddr, redisPassword string, logger *zap.Logger) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword}),
		logger: logger,
	}
}

func (c *Client) EnqueueSync(ctx context.Context, orgID string, provider models.Provider, syncType models.SyncType) error {
	task, err := NewSyncTask(SyncPayload{OrgID: orgID, Provider: provider, SyncType: syncType})
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueueing sync task: %w", err)
	}

	c.logger.Info("sync task enqueued",
		zap.String("task_id", info.ID),
		zap.String("org_id", orgID),
		zap.String("provider", string(provider)),
		zap.String("sync_type", string(syncType)))

	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
