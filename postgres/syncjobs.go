package postgres

import (
	"context"
	"database/sql"

	"github.com/unionhall/integration-hub/models"
)

type SyncJobRepository struct {
	db *sql.DB
}

func NewSyncJobRepository(db *sql.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

func (r *SyncJobRepository) Upsert(ctx context.Context, job *models.SyncJob) error {
	query := `
		INSERT INTO sync_jobs (org_id, provider, sync_type, cron_expr, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (org_id, provider, sync_type) DO UPDATE SET
			cron_expr = EXCLUDED.cron_expr,
			enabled = EXCLUDED.enabled,
			updated_at = now()
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query,
		job.OrgID, job.Provider, job.SyncType, job.CronExpr, job.Enabled,
	).Scan(&job.ID)
}

func (r *SyncJobRepository) ListEnabled(ctx context.Context) ([]models.SyncJob, error) {
	query := `
		SELECT id, org_id, provider, sync_type, cron_expr, enabled, created_at, updated_at
		FROM sync_jobs
		WHERE enabled = TRUE
		ORDER BY org_id, provider, sync_type
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SyncJob

	for rows.Next() {
		var job models.SyncJob

		err := rows.Scan(&job.ID, &job.OrgID, &job.Provider, &job.SyncType,
			&job.CronExpr, &job.Enabled, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return nil, err
		}

		out = append(out, job)
	}

	return out, rows.Err()
}

func (r *SyncJobRepository) Delete(ctx context.Context, orgID string, provider models.Provider, syncType models.SyncType) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_jobs WHERE org_id = $1 AND provider = $2 AND sync_type = $3`,
		orgID, provider, syncType)

	return err
}
