// Package slack syncs workspace users and channels and receives Events
// API deliveries.
package slack

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
	defaultBaseURL = "https://slack.com"
	pageSize       = 200
)

type Adapter struct {
	records integration.RecordStore
	logger  *zap.Logger

	baseURL    string
	httpClient *http.Client

	cfg           *models.IntegrationConfig
	client        *rest.Client
	signingSecret string
}

type Option func(*Adapter)

// WithBaseURL points the adapter at a different API host, used by
// tests.
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
		logger:  logger.With(zap.String("provider", string(models.ProviderSlack))),
		baseURL: defaultBaseURL,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Adapter) Provider() models.Provider {
	return models.ProviderSlack
}

func (a *Adapter) Initialize(_ context.Context, cfg *models.IntegrationConfig) error {
	token := cfg.Credentials["bot_token"]
	if token == "" {
		return models.NewAuthenticationError(models.ProviderSlack, "credentials missing bot_token")
	}

	restOpts := []rest.Option{rest.WithBearerToken(token)}
	if a.httpClient != nil {
		restOpts = append(restOpts, rest.WithHTTPClient(a.httpClient))
	}

	a.cfg = cfg
	a.signingSecret = cfg.Credentials["signing_secret"]
	a.client = rest.New(models.ProviderSlack, a.baseURL, a.logger, restOpts...)

	return nil
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (a *Adapter) Connect(ctx context.Context) error {
	var resp apiResponse
	if err := a.client.PostJSON(ctx, "/api/auth.test", nil, &resp); err != nil {
		return err
	}

	if !resp.OK {
		return models.NewAuthenticationError(models.ProviderSlack, "auth.test failed: "+resp.Error)
	}

	return nil
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
		return nil, models.NewSyncError(models.ProviderSlack, models.CodeSyncFailed, "adapter not initialized")
	}

	entities := opts.Entities
	if len(entities) == 0 {
		entities = []string{"users", "channels"}
	}

	startedAt := time.Now().UTC()
	result := &models.SyncResult{}

	for _, entity := range entities {
		var err error

		switch entity {
		case "users":
			err = a.syncUsers(ctx, opts, result)
		case "channels":
			err = a.syncChannels(ctx, opts, result)
		default:
			err = fmt.Errorf("unsupported entity %q", entity)
		}

		if err != nil {
			a.logger.Warn("entity sync failed", zap.String("entity", entity), zap.Error(err))
			result.RecordsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entity, err))
		}
	}

	result.Success = result.RecordsFailed == 0
	result.Cursor = startedAt.Format(time.RFC3339)

	return result, nil
}

type member struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Deleted  bool   `json:"deleted"`
	IsBot    bool   `json:"is_bot"`
	Updated  int64  `json:"updated"`
	Profile  struct {
		Email string `json:"email"`
		Title string `json:"title"`
	} `json:"profile"`
}

func (a *Adapter) syncUsers(ctx context.Context, opts models.SyncOptions, result *models.SyncResult) error {
	var page struct {
		apiResponse
		Members          []member `json:"members"`
		ResponseMetadata struct {
			NextCursor string `json:"next_cursor"`
		} `json:"response_metadata"`
	}

	cursor := ""

	for {
		q := url.Values{"limit": {fmt.Sprint(pageSize)}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		if err := a.client.GetJSON(ctx, "/api/users.list", q, &page); err != nil {
			return err
		}

		if !page.OK {
			return models.NewSyncError(models.ProviderSlack, models.CodeSyncFailed, "users.list: "+page.Error)
		}

		var batch []models.ExternalRecord

		for _, m := range page.Members {
			if m.IsBot || m.Deleted {
				continue
			}

			if opts.Since != nil && m.Updated > 0 && time.Unix(m.Updated, 0).Before(*opts.Since) {
				continue
			}

			batch = append(batch, models.ExternalRecord{
				OrgID:      a.cfg.OrgID,
				Provider:   models.ProviderSlack,
				Entity:     "users",
				ExternalID: m.ID,
				Data: map[string]any{
					"name":      m.Name,
					"real_name": m.RealName,
					"email":     m.Profile.Email,
					"title":     m.Profile.Title,
				},
				SyncedAt: time.Now().UTC(),
			})
		}

		if err := a.upsert(ctx, opts, batch, result); err != nil {
			return err
		}

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" || (opts.Limit > 0 && result.RecordsProcessed >= opts.Limit) {
			return nil
		}
	}
}

type channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsArchived bool   `json:"is_archived"`
	NumMembers int    `json:"num_members"`
}

func (a *Adapter) syncChannels(ctx context.Context, opts models.SyncOptions, result *models.SyncResult) error {
	var page struct {
		apiResponse
		Channels         []channel `json:"channels"`
		ResponseMetadata struct {
			NextCursor string `json:"next_cursor"`
		} `json:"response_metadata"`
	}

	cursor := ""

	for {
		q := url.Values{"limit": {fmt.Sprint(pageSize)}, "exclude_archived": {"true"}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		if err := a.client.GetJSON(ctx, "/api/conversations.list", q, &page); err != nil {
			return err
		}

		if !page.OK {
			return models.NewSyncError(models.ProviderSlack, models.CodeSyncFailed, "conversations.list: "+page.Error)
		}

		var batch []models.ExternalRecord

		for _, ch := range page.Channels {
			if ch.IsArchived {
				continue
			}

			batch = append(batch, models.ExternalRecord{
				OrgID:      a.cfg.OrgID,
				Provider:   models.ProviderSlack,
				Entity:     "channels",
				ExternalID: ch.ID,
				Data: map[string]any{
					"name":        ch.Name,
					"num_members": ch.NumMembers,
				},
				SyncedAt: time.Now().UTC(),
			})
		}

		if err := a.upsert(ctx, opts, batch, result); err != nil {
			return err
		}

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" || (opts.Limit > 0 && result.RecordsProcessed >= opts.Limit) {
			return nil
		}
	}
}

func (a *Adapter) upsert(ctx context.Context, opts models.SyncOptions, batch []models.ExternalRecord, result *models.SyncResult) error {
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

// VerifyWebhook checks the v0 request signature Slack computes over
// the raw body with the app's signing secret.
func (a *Adapter) VerifyWebhook(payload []byte, signature string) bool {
	if a.signingSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.signingSecret))
	mac.Write(payload)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func (a *Adapter) ProcessWebhook(ctx context.Context, event *models.WebhookEvent) error {
	var envelope struct {
		Event struct {
			Type string          `json:"type"`
			User json.RawMessage `json:"user"`
		} `json:"event"`
	}

	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return models.NewWebhookError(models.ProviderSlack, "decoding event payload: "+err.Error())
	}

	switch envelope.Event.Type {
	case "user_change", "team_join":
		var u member
		if err := json.Unmarshal(envelope.Event.User, &u); err != nil {
			return models.NewWebhookError(models.ProviderSlack, "decoding user event: "+err.Error())
		}

		if u.ID == "" {
			return models.NewWebhookError(models.ProviderSlack, "user event missing id")
		}

		_, _, err := a.records.UpsertRecords(ctx, []models.ExternalRecord{{
			OrgID:      event.OrgID,
			Provider:   models.ProviderSlack,
			Entity:     "users",
			ExternalID: u.ID,
			Data: map[string]any{
				"name":      u.Name,
				"real_name": u.RealName,
				"email":     u.Profile.Email,
				"title":     u.Profile.Title,
			},
			SyncedAt: time.Now().UTC(),
		}})

		return err
	default:
		a.logger.Debug("ignoring unhandled event type", zap.String("event_type", envelope.Event.Type))
		return nil
	}
}
