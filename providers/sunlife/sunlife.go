// Package sunlife syncs group benefits data (plan members, claims,
// coverage) from the Sun Life group API.
package sunlife

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

const (
	defaultBaseURL = "https://api.sunlife.ca"
	pageSize       = 50
)

var entityPaths = map[string]string{
	"members":  "members",
	"claims":   "claims",
	"coverage": "coverage",
}

type Adapter struct {
	records integration.RecordStore
	logger  *zap.Logger

	baseURL    string
	httpClient *http.Client

	cfg           *models.IntegrationConfig
	client        *rest.Client
	groupID       string
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
		logger:  logger.With(zap.String("provider", string(models.ProviderSunLife))),
		baseURL: defaultBaseURL,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Adapter) Provider() models.Provider {
	return models.ProviderSunLife
}

func (a *Adapter) Initialize(_ context.Context, cfg *models.IntegrationConfig) error {
	apiKey := cfg.Credentials["api_key"]
	groupID := cfg.Credentials["group_id"]

	if apiKey == "" || groupID == "" {
		return models.NewAuthenticationError(models.ProviderSunLife,
			"credentials missing api_key or group_id")
	}

	restOpts := []rest.Option{rest.WithHeaderAuth("X-API-Key", apiKey)}
	if a.httpClient != nil {
		restOpts = append(restOpts, rest.WithHTTPClient(a.httpClient))
	}

	a.cfg = cfg
	a.groupID = groupID
	a.webhookSecret = cfg.Credentials["webhook_secret"]
	a.client = rest.New(models.ProviderSunLife, a.baseURL, a.logger, restOpts...)

	return nil
}

func (a *Adapter) Connect(ctx context.Context) error {
	path := fmt.Sprintf("/group/v1/%s", a.groupID)
	return a.client.GetJSON(ctx, path, nil, nil)
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
		return nil, models.NewSyncError(models.ProviderSunLife, models.CodeSyncFailed, "adapter not initialized")
	}

	entities := opts.Entities
	if len(entities) == 0 {
		entities = []string{"members", "claims", "coverage"}
	}

	startedAt := time.Now().UTC()
	result := &models.SyncResult{}

	for _, entity := range entities {
		sub, ok := entityPaths[entity]
		if !ok {
			result.RecordsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: unsupported entity", entity))
			continue
		}

		if err := a.syncEntity(ctx, entity, sub, opts, result); err != nil {
			a.logger.Warn("entity sync failed", zap.String("entity", entity), zap.Error(err))
			result.RecordsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entity, err))
		}
	}

	result.Success = result.RecordsFailed == 0
	result.Cursor = startedAt.Format(time.RFC3339)

	return result, nil
}

func (a *Adapter) syncEntity(ctx context.Context, entity, sub string, opts models.SyncOptions, result *models.SyncResult) error {
	path := fmt.Sprintf("/group/v1/%s/%s", a.groupID, sub)

	for page := 1; ; page++ {
		q := url.Values{
			"page":     {fmt.Sprint(page)},
			"pageSize": {fmt.Sprint(pageSize)},
		}
		if opts.Since != nil {
			q.Set("modifiedSince", opts.Since.UTC().Format(time.RFC3339))
		}

		var body struct {
			Items    []json.RawMessage `json:"items"`
			NextPage int               `json:"nextPage"`
		}

		if err := a.client.GetJSON(ctx, path, q, &body); err != nil {
			return err
		}

		batch := make([]models.ExternalRecord, 0, len(body.Items))

		for _, raw := range body.Items {
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
				Provider:   models.ProviderSunLife,
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

		if body.NextPage == 0 || (opts.Limit > 0 && result.RecordsProcessed >= opts.Limit) {
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
		Claim     map[string]any `json:"claim"`
		Member    map[string]any `json:"member"`
	}

	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return models.NewWebhookError(models.ProviderSunLife, "decoding event payload: "+err.Error())
	}

	var batch []models.ExternalRecord

	if id, _ := payload.Claim["id"].(string); id != "" {
		batch = append(batch, models.ExternalRecord{
			OrgID:      event.OrgID,
			Provider:   models.ProviderSunLife,
			Entity:     "claims",
			ExternalID: id,
			Data:       payload.Claim,
			SyncedAt:   time.Now().UTC(),
		})
	}

	if id, _ := payload.Member["id"].(string); id != "" {
		batch = append(batch, models.ExternalRecord{
			OrgID:      event.OrgID,
			Provider:   models.ProviderSunLife,
			Entity:     "members",
			ExternalID: id,
			Data:       payload.Member,
			SyncedAt:   time.Now().UTC(),
		})
	}

	if len(batch) == 0 {
		a.logger.Debug("event carries no claim or member, ignoring",
			zap.String("event_type", payload.EventType))
		return nil
	}

	_, _, err := a.records.UpsertRecords(ctx, batch)
	return err
}
