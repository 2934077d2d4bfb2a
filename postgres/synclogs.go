package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unionhall/integration-hub/models"
)

type SyncLogRepository struct {
	db *sql.DB
}

func NewSyncLogRepository(db *sql.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Create inserts the initial running row. The uq_sync_logs_running
// partial index makes a second concurrent running row for the same
// (org, provider, type) fail here, which backstops the engine's
// process-local guard across instances.
func (r *SyncLogRepository) Create(ctx context.Context, entry *models.SyncLogEntry) error {
	query := `
		INSERT INTO sync_logs (id, org_id, provider, sync_type, status,
			records_processed, records_created, records_updated, records_failed,
			cursor, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.OrgID, entry.Provider, entry.SyncType, entry.Status,
		entry.RecordsProcessed, entry.RecordsCreated, entry.RecordsUpdated, entry.RecordsFailed,
		entry.Cursor, entry.Error, entry.StartedAt, entry.CompletedAt)

	return err
}

func (r *SyncLogRepository) Update(ctx context.Context, entry *models.SyncLogEntry) error {
	query := `
		UPDATE sync_logs SET
			status = $2,
			records_processed = $3,
			records_created = $4,
			records_updated = $5,
			records_failed = $6,
			cursor = $7,
			error = $8,
			completed_at = $9
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Status,
		entry.RecordsProcessed, entry.RecordsCreated, entry.RecordsUpdated, entry.RecordsFailed,
		entry.Cursor, entry.Error, entry.CompletedAt)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *SyncLogRepository) LastSuccess(ctx context.Context, orgID string, provider models.Provider, syncType models.SyncType) (*models.SyncLogEntry, error) {
	query := `
		SELECT id, org_id, provider, sync_type, status,
			records_processed, records_created, records_updated, records_failed,
			cursor, error, started_at, completed_at
		FROM sync_logs
		WHERE org_id = $1 AND provider = $2 AND sync_type = $3 AND status = $4
		ORDER BY started_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, orgID, provider, syncType, models.SyncStatusSuccess)

	entry, err := scanSyncLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, err
	}

	return entry, nil
}

func (r *SyncLogRepository) History(ctx context.Context, orgID string, provider models.Provider, limit int) ([]models.SyncLogEntry, error) {
	query := `
		SELECT id, org_id, provider, sync_type, status,
			records_processed, records_created, records_updated, records_failed,
			cursor, error, started_at, completed_at
		FROM sync_logs
		WHERE org_id = $1 AND ($2 = '' OR provider = $2)
		ORDER BY started_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, string(provider), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SyncLogEntry

	for rows.Next() {
		entry, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, *entry)
	}

	return out, rows.Err()
}

func scanSyncLog(row rowScanner) (*models.SyncLogEntry, error) {
	var (
		entry       models.SyncLogEntry
		completedAt sql.NullTime
	)

	err := row.Scan(&entry.ID, &entry.OrgID, &entry.Provider, &entry.SyncType, &entry.Status,
		&entry.RecordsProcessed, &entry.RecordsCreated, &entry.RecordsUpdated, &entry.RecordsFailed,
		&entry.Cursor, &entry.Error, &entry.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		entry.CompletedAt = &t
	}

	return &entry, nil
}
