package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/unionhall/integration-hub/models"
	"github.com/unionhall/integration-hub/registry"
)

func providerHasType(p models.Provider, typ models.IntegrationType) bool {
	info, ok := registry.Lookup(p)
	return ok && info.Type == typ
}

type ConfigRepository struct {
	db *sql.DB
}

func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) GetConfig(ctx context.Context, orgID string, provider models.Provider) (*models.IntegrationConfig, error) {
	query := `
		SELECT id, org_id, provider, credentials, settings, enabled, webhook_url, created_at, updated_at
		FROM integration_configs
		WHERE org_id = $1 AND provider = $2
	`

	row := r.db.QueryRowContext(ctx, query, orgID, provider)

	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, err
	}

	return cfg, nil
}

func (r *ConfigRepository) ListEnabledConfigs(ctx context.Context, orgID string, typ models.IntegrationType) ([]models.IntegrationConfig, error) {
	query := `
		SELECT id, org_id, provider, credentials, settings, enabled, webhook_url, created_at, updated_at
		FROM integration_configs
		WHERE org_id = $1 AND enabled = TRUE
		ORDER BY provider
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.IntegrationConfig

	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}

		// the type filter goes through registry metadata, not a column
		if typ != "" && !providerHasType(cfg.Provider, typ) {
			continue
		}

		out = append(out, *cfg)
	}

	return out, rows.Err()
}

func (r *ConfigRepository) Save(ctx context.Context, cfg *models.IntegrationConfig) error {
	credentials, err := json.Marshal(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	query := `
		INSERT INTO integration_configs (org_id, provider, credentials, settings, enabled, webhook_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (org_id, provider) DO UPDATE SET
			credentials = EXCLUDED.credentials,
			settings = EXCLUDED.settings,
			enabled = EXCLUDED.enabled,
			webhook_url = EXCLUDED.webhook_url,
			updated_at = now()
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query,
		cfg.OrgID, cfg.Provider, credentials, settings, cfg.Enabled, cfg.WebhookURL,
	).Scan(&cfg.ID)
}

func (r *ConfigRepository) Delete(ctx context.Context, orgID string, provider models.Provider) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM integration_configs WHERE org_id = $1 AND provider = $2`, orgID, provider)

	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*models.IntegrationConfig, error) {
	var (
		cfg         models.IntegrationConfig
		credentials []byte
		settings    []byte
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&cfg.ID, &cfg.OrgID, &cfg.Provider, &credentials, &settings,
		&cfg.Enabled, &cfg.WebhookURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(credentials, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}

	if err := json.Unmarshal(settings, &cfg.Settings); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}

	cfg.CreatedAt = createdAt
	cfg.UpdatedAt = updatedAt

	return &cfg, nil
}
