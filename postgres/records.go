package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/unionhall/integration-hub/models"
)

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// UpsertRecords writes synced records inside a single transaction and
// reports how many were new versus refreshed. The xmax = 0 trick
// distinguishes an insert from an update on the conflict path.
func (r *RecordRepository) UpsertRecords(ctx context.Context, records []models.ExternalRecord) (int, int, error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO external_records (org_id, provider, entity, external_id, data, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (org_id, provider, entity, external_id) DO UPDATE SET
			data = EXCLUDED.data,
			synced_at = EXCLUDED.synced_at
		RETURNING (xmax = 0)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	var created, updated int

	for i := range records {
		rec := &records[i]

		data, err := json.Marshal(rec.Data)
		if err != nil {
			return 0, 0, fmt.Errorf("encoding record %s/%s: %w", rec.Entity, rec.ExternalID, err)
		}

		var inserted bool

		err = stmt.QueryRowContext(ctx,
			rec.OrgID, rec.Provider, rec.Entity, rec.ExternalID, data, rec.SyncedAt,
		).Scan(&inserted)
		if err != nil {
			return 0, 0, err
		}

		if inserted {
			created++
		} else {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	return created, updated, nil
}
