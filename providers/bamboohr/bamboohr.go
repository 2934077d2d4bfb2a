// Package bamboohr syncs the employee directory from BambooHR. The
// directory endpoint is not paginated, so a sync is a single fetch with
// client-side incremental filtering.
package bamboohr

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/integration"
	"github.com/unionhall/integration-hub/models"
	"github.com/unionhall/integration-hub/providers/rest"
)

const defaultBaseURL = "https://api.bamboohr.com"

type Adapter struct {
	records integration.RecordStore
	logger  *zap.Logger

	baseURL    string
	httpClient *http.Client

	cfg        *models.IntegrationConfig
	client     *rest.Client
	subdomain  string
	webhookKey string
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
		logger:  logger.With(zap.String("provider", string(models.ProviderBambooHR))),
		baseURL: defaultBaseURL,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Adapter) Provider() models.Provider {
	return models.ProviderBambooHR
}

func (a *Adapter) Initialize(_ context.Context, cfg *models.IntegrationConfig) error {
	apiKey := cfg.Credentials["api_key"]
	subdomain := cfg.Credentials["subdomain"]

	if apiKey == "" || subdomain == "" {
		return models.NewAuthenticationError(models.ProviderBambooHR,
			"credentials missing api_key or subdomain")
	}

	// the API key goes in the basic auth username slot
	restOpts := []rest.Option{rest.WithBasicAuth(apiKey, "x")}
	if a.httpClient != nil {
		restOpts = append(restOpts, rest.WithHTTPClient(a.httpClient))
	}

	a.cfg = cfg
	a.subdomain = subdomain
	a.webhookKey = cfg.Credentials["webhook_key"]
	a.client = rest.New(models.ProviderBambooHR, a.baseURL, a.logger, restOpts...)

	return nil
}

func (a *Adapter) Connect(ctx context.Context) error {
	path := fmt.Sprintf("/api/gateway.php/%s/v1/meta/fields", a.subdomain)
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

type employee struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	JobTitle    string `json:"jobTitle"`
	WorkEmail   string `json:"workEmail"`
	Department  string `json:"department"`
	LastChanged string `json:"lastChanged"`
}

func (a *Adapter) Sync(ctx context.Context, opts models.SyncOptions) (*models.SyncResult, error) {
	if a.client == nil {
		return nil, models.NewSyncError(models.ProviderBambooHR, models.CodeSyncFailed, "adapter not initialized")
	}

	entities := opts.Entities
	if len(entities) == 0 {
		entities = []string{"employees"}
	}

	startedAt := time.Now().UTC()
	result := &models.SyncResult{}

	for _, entity := range entities {
		if entity != "employees" {
			result.RecordsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: unsupported entity", entity))
			continue
		}

		if err := a.syncEmployees(ctx, opts, result); err != nil {
			a.logger.Warn("entity sync failed", zap.String("entity", entity), zap.Error(err))
			result.RecordsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entity, err))
		}
	}

	result.Success = result.RecordsFailed == 0
	result.Cursor = startedAt.Format(time.RFC3339)

	return result, nil
}

func (a *Adapter) syncEmployees(ctx context.Context, opts models.SyncOptions, result *models.SyncResult) error {
	path := fmt.Sprintf("/api/gateway.php/%s/v1/employees/directory", a.subdomain)

	var directory struct {
		Employees []employee `json:"employees"`
	}

	if err := a.client.GetJSON(ctx, path, nil, &directory); err != nil {
		return err
	}

	var batch []models.ExternalRecord

	for _, emp := range directory.Employees {
		if emp.ID == "" {
			result.RecordsFailed++
			result.Errors = append(result.Errors, "employees: row missing id")
			continue
		}

		if opts.Since != nil && emp.LastChanged != "" {
			changed, err := time.Parse(time.RFC3339, emp.LastChanged)
			if err == nil && changed.Before(*opts.Since) {
				continue
			}
		}

		batch = append(batch, models.ExternalRecord{
			OrgID:      a.cfg.OrgID,
			Provider:   models.ProviderBambooHR,
			Entity:     "employees",
			ExternalID: emp.ID,
			Data: map[string]any{
				"display_name": emp.DisplayName,
				"first_name":   emp.FirstName,
				"last_name":    emp.LastName,
				"job_title":    emp.JobTitle,
				"work_email":   emp.WorkEmail,
				"department":   emp.Department,
			},
			SyncedAt: time.Now().UTC(),
		})

		if opts.Limit > 0 && len(batch) >= opts.Limit {
			break
		}
	}

	result.RecordsProcessed += len(batch)

	if opts.DryRun || len(batch) == 0 {
		return nil
	}

	created, updated, err := a.records.UpsertRecords(ctx, batch)
	if err != nil {
		return err
	}

	result.RecordsCreated += created
	result.RecordsUpdated += updated

	return nil
}

func (a *Adapter) VerifyWebhook(payload []byte, signature string) bool {
	if a.webhookKey == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.webhookKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func (a *Adapter) ProcessWebhook(ctx context.Context, event *models.WebhookEvent) error {
	var payload struct {
		Employees []struct {
			ID     string            `json:"id"`
			Fields map[string]string `json:"fields"`
		} `json:"employees"`
	}

	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return models.NewWebhookError(models.ProviderBambooHR, "decoding event payload: "+err.Error())
	}

	var batch []models.ExternalRecord

	for _, emp := range payload.Employees {
		if emp.ID == "" {
			continue
		}

		data := make(map[string]any, len(emp.Fields))
		for k, v := range emp.Fields {
			data[k] = v
		}

		batch = append(batch, models.ExternalRecord{
			OrgID:      event.OrgID,
			Provider:   models.ProviderBambooHR,
			Entity:     "employees",
			ExternalID: emp.ID,
			Data:       data,
			SyncedAt:   time.Now().UTC(),
		})
	}

	if len(batch) == 0 {
		return nil
	}

	_, _, err := a.records.UpsertRecords(ctx, batch)
	return err
}
