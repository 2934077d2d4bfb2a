package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/unionhall/integration-hub/models"
)

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Create upserts by event id: a redelivery of a payload whose earlier
// attempt failed reuses the row instead of colliding on the primary
// key.
func (r *WebhookEventRepository) Create(ctx context.Context, event *models.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (id, org_id, provider, event_type, status,
			payload, signature, verified, attempts, error, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			event_type = EXCLUDED.event_type,
			status = EXCLUDED.status,
			signature = EXCLUDED.signature,
			verified = EXCLUDED.verified,
			attempts = EXCLUDED.attempts,
			error = EXCLUDED.error,
			received_at = EXCLUDED.received_at
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.OrgID, event.Provider, event.EventType, event.Status,
		event.Payload, event.Signature, event.Verified, event.Attempts, event.Error,
		event.ReceivedAt, event.ProcessedAt)

	return err
}

func (r *WebhookEventRepository) Get(ctx context.Context, id string) (*models.WebhookEvent, error) {
	query := `
		SELECT id, org_id, provider, event_type, status,
			payload, signature, verified, attempts, error, received_at, processed_at
		FROM webhook_events
		WHERE id = $1
	`

	var (
		event       models.WebhookEvent
		processedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID, &event.OrgID, &event.Provider, &event.EventType, &event.Status,
		&event.Payload, &event.Signature, &event.Verified, &event.Attempts, &event.Error,
		&event.ReceivedAt, &processedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, err
	}

	if processedAt.Valid {
		t := processedAt.Time
		event.ProcessedAt = &t
	}

	return &event, nil
}

func (r *WebhookEventRepository) UpdateStatus(ctx context.Context, id string, status models.WebhookStatus, attempts int, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = $2, attempts = $3, error = $4 WHERE id = $1`,
		id, status, attempts, errMsg)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = $2, processed_at = $3, error = '' WHERE id = $1`,
		id, models.WebhookStatusProcessed, processedAt)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *WebhookEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []models.WebhookStatus) (int64, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_events WHERE received_at < $1 AND status = ANY($2)`,
		cutoff, strs)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
