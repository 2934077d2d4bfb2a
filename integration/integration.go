// Package integration defines the contract every provider adapter
// implements and the factory that caches live, initialized adapter
// instances per (organization, provider).
package integration

import (
	"context"

	"github.com/unionhall/integration-hub/models"
)

// Integration is implemented by each provider adapter. Lifecycle:
// the factory constructs an instance, calls Initialize with the
// organization's stored configuration, and caches it until the cache is
// explicitly cleared or the process restarts.
type Integration interface {
	Provider() models.Provider

	Initialize(ctx context.Context, cfg *models.IntegrationConfig) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (*models.HealthStatus, error)

	// Sync pulls entities from the external system and upserts them.
	// Partial per-entity failures are counted on the result, not
	// returned as an error; an error return means the run as a whole
	// failed.
	Sync(ctx context.Context, opts models.SyncOptions) (*models.SyncResult, error)

	// VerifyWebhook checks the delivery signature against the raw
	// payload bytes.
	VerifyWebhook(payload []byte, signature string) bool
	ProcessWebhook(ctx context.Context, event *models.WebhookEvent) error
}

// Constructor builds an uninitialized adapter. Shared dependencies
// (record store, logger) are closed over when the constructor map is
// assembled at the composition root.
type Constructor func() Integration

// ConfigStore loads persisted integration configuration.
type ConfigStore interface {
	GetConfig(ctx context.Context, orgID string, provider models.Provider) (*models.IntegrationConfig, error)
	// ListEnabledConfigs returns all enabled configs for the org,
	// optionally filtered by integration type ("" means all).
	ListEnabledConfigs(ctx context.Context, orgID string, typ models.IntegrationType) ([]models.IntegrationConfig, error)
}

// RecordStore is where adapters land synced entities.
type RecordStore interface {
	UpsertRecords(ctx context.Context, records []models.ExternalRecord) (created, updated int, err error)
}
