// Package workday syncs workers and positions from the Workday REST
// API.
package workday

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/integration"
	"github.com/unionhall/integration-hub/models"
	"github.com/unionhall/integration-hub/providers/rest"
)

const pageSize = 100

type Adapter struct {
	records integration.RecordStore
	logger  *zap.Logger

	baseURL    string
	httpClient *http.Client

	cfg           *models.IntegrationConfig
	client        *rest.Client
	tenant        string
	webhookSecret string
}

type Option func(*Adapter)

func WithBaseURL(u string) Option {
	return func(a *Adapter) {
		a.baseURL = u
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = hc
	}
}

func New(records integration.RecordStore, logger *zap.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		records: records,
		logger:  logger.With(zap.String("provider", string(models.ProviderWorkday))),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Adapter) Provider() models.Provider {
	return models.ProviderWorkday
}

// Initialize expects a per-tenant host in settings; Workday has no
// shared API hostname.
func (a *Adapter) Initialize(_ context.Context, cfg *models.IntegrationConfig) error {
	token := cfg.Credentials["access_token"]
	tenant := cfg.Credentials["tenant"]

	if token == "" || tenant == "" {
		return models.NewAuthenticationError(models.ProviderWorkday,
			"credentials missing access_token or tenant")
	}

	base := a.baseURL
	if base == "" {
		base = cfg.Settings["api_host"]
	}
	if base == "" {
		return models.NewConnectionError(models.ProviderWorkday, "settings missing api_host", nil)
	}

	restOpts := []rest.Option{rest.WithBearerToken(token)}
	if a.httpClient != nil {
		restOpts = append(restOpts, rest.WithHTTPClient(a.httpClient))
	}

	a.cfg = cfg
	a.tenant = tenant
	a.webhookSecret = cfg.Credentials["webhook_secret"]
	a.client = rest.New(models.ProviderWorkday, base, a.logger, restOpts...)

	return nil
}

func (a *Adapter) Connect(ctx context.Context) error {
	path := fmt.Sprintf("/ccx/api/v1/%s/workers", a.tenant)
	return a.client.GetJSON(ctx, path, url.Values{"limit": {"1"}}, nil)
}

func (a *Adapter) Disconnect(_ context.Context) error {
	a.client = nil
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) (*models.HealthStatus, error) {
	start := time.Now()

	if err := a.Connect(ctx); err != nil {
		return &models.HealthStatus{
			Healthy:   false,
			Status:    "unreachable",
			Latency:   time.Since(start),
			LastError: err.Error(),
		}, nil
	}

	return &models.HealthStatus{Healthy: true, Status: "ok", Latency: time.Since(start)}, nil
}

func (a *Adapter) Sync(ctx context.Context, opts models.SyncOptions) (*models.SyncResult, error) {
	if a.client == nil {
		return nil, models.NewSyncError(models.ProviderWorkday, models.CodeSyncFailed, "adapter not initialized")
	}

	entities := opts.Entities
	if len(entities) == 0 {
		entities = []string{"workers", "positions"}
	}

	startedAt := time.Now().UTC()
	result := &models.SyncResult{}

	for _, entity := range entities {
		if entity != "workers" && entity != "positions" {
			result.RecordsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: unsupported entity", entity))
			continue
		}

		if err := a.syncEntity(ctx, entity, opts, result); err != nil {
			a.logger.Warn("entity sync failed", zap.String("entity", entity), zap.Error(err))
			result.RecordsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entity, err))
		}
	}

	result.Success = result.RecordsFailed == 0
	result.Cursor = startedAt.Format(time.RFC3339)

	return result, nil
}

func (a *Adapter) syncEntity(ctx context.Context, entity string, opts models.SyncOptions, result *models.SyncResult) error {
	path := fmt.Sprintf("/ccx/api/v1/%s/%s", a.tenant, entity)

	for offset := 0; ; offset += pageSize {
		q := url.Values{
			"limit":  {fmt.Sprint(pageSize)},
			"offset": {fmt.Sprint(offset)},
		}
		if opts.Since != nil {
			q.Set("updatedFrom", opts.Since.UTC().Format(time.RFC3339))
		}

		var page struct {
			Total int               `json:"total"`
			Data  []json.RawMessage `json:"data"`
		}

		if err := a.client.GetJSON(ctx, path, q, &page); err != nil {
			return err
		}

		batch := make([]models.ExternalRecord, 0, len(page.Data))

		for _, raw := range page.Data {
			var row map[string]any
			if err := json.Unmarshal(raw, &row); err != nil {
				result.RecordsFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entity, err))
				continue
			}

			id, _ := row["id"].(string)
			if id == "" {
				result.RecordsFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: row missing id", entity))
				continue
			}

			batch = append(batch, models.ExternalRecord{
				OrgID:      a.cfg.OrgID,
				Provider:   models.ProviderWorkday,
				Entity:     entity,
				ExternalID: id,
				Data:       row,
				SyncedAt:   time.Now().UTC(),
			})
		}

		result.RecordsProcessed += len(batch)

		if !opts.DryRun && len(batch) > 0 {
			created, updated, err := a.records.UpsertRecords(ctx, batch)
			if err != nil {
				return err
			}

			result.RecordsCreated += created
			result.RecordsUpdated += updated
		}

		if offset+pageSize >= page.Total || len(page.Data) == 0 ||
			(opts.Limit > 0 && result.RecordsProcessed >= opts.Limit) {
			return nil
		}
	}
}

func (a *Adapter) VerifyWebhook(payload []byte, signature string) bool {
	if a.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func (a *Adapter) ProcessWebhook(ctx context.Context, event *models.WebhookEvent) error {
	var payload struct {
		EventType string         `json:"eventType"`
		Worker    map[string]any `json:"worker"`
	}

	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return models.NewWebhookError(models.ProviderWorkday, "decoding event payload: "+err.Error())
	}

	id, _ := payload.Worker["id"].(string)
	if id == "" {
		a.logger.Debug("event carries no worker, ignoring",
			zap.String("event_type", payload.EventType))
		return nil
	}

	_, _, err := a.records.UpsertRecords(ctx, []models.ExternalRecord{{
		OrgID:      event.OrgID,
		Provider:   models.ProviderWorkday,
		Entity:     "workers",
		ExternalID: id,
		Data:       payload.Worker,
		SyncedAt:   time.Now().UTC(),
	}})

	return err
}
