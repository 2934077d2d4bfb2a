package web

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/models"
	"github.com/unionhall/integration-hub/registry"
)

const orgHeader = "X-Organization-ID"

// signatureHeaders lists the header each provider delivers its webhook
// signature in; anything unlisted uses the generic fallback.
var signatureHeaders = map[models.Provider]string{
	models.ProviderSlack:      "X-Slack-Signature",
	models.ProviderQuickBooks: "Intuit-Signature",
}

const fallbackSignatureHeader = "X-Webhook-Signature"

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func errorResponse(c echo.Context, status int, err error) error {
	return c.JSON(status, apiError{Code: string(models.ErrorCodeOf(err)), Message: err.Error()})
}

// statusFor maps integration error codes onto HTTP statuses.
func statusFor(err error) int {
	switch models.ErrorCodeOf(err) {
	case models.CodeUnknownProvider, models.CodeConfigNotFound:
		return http.StatusNotFound
	case models.CodeSyncInProgress:
		return http.StatusConflict
	case models.CodeIntegrationDisabled, models.CodeProviderUnavailable, models.CodeNotImplemented:
		return http.StatusUnprocessableEntity
	case models.CodeInvalidSchedule, models.CodeMissingEnvVars:
		return http.StatusUnprocessableEntity
	case models.CodeAuthFailed:
		return http.StatusBadGateway
	case models.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleWebhook(c echo.Context) error {
	provider := models.Provider(c.Param("provider"))
	if _, ok := registry.Lookup(provider); !ok {
		return c.JSON(http.StatusNotFound, apiError{
			Code:    string(models.CodeUnknownProvider),
			Message: "unknown provider " + string(provider),
		})
	}

	orgID := c.Request().Header.Get(orgHeader)
	if orgID == "" {
		return c.JSON(http.StatusBadRequest, apiError{Message: orgHeader + " header required"})
	}

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Message: "reading request body: " + err.Error()})
	}

	headerName := signatureHeaders[provider]
	if headerName == "" {
		headerName = fallbackSignatureHeader
	}
	signature := c.Request().Header.Get(headerName)

	headers := make(map[string]string)
	for name := range c.Request().Header {
		headers[name] = c.Request().Header.Get(name)
	}

	result := s.hooks.ProcessWebhook(c.Request().Context(), orgID, provider, payload, signature, headers)
	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}

	return c.JSON(http.StatusOK, result)
}

type syncRequest struct {
	OrgID    string          `json:"org_id"`
	Provider models.Provider `json:"provider"`
	SyncType models.SyncType `json:"sync_type"`
	Entities []string        `json:"entities,omitempty"`
	Since    string          `json:"since,omitempty"`
	Cursor   string          `json:"cursor,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	DryRun   bool            `json:"dry_run,omitempty"`
	Async    bool            `json:"async,omitempty"`
}

func (s *Server) handleTriggerSync(c echo.Context) error {
	var req syncRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Message: err.Error()})
	}

	if req.OrgID == "" || req.Provider == "" {
		return c.JSON(http.StatusBadRequest, apiError{Message: "org_id and provider are required"})
	}

	if req.Async {
		if s.enqueuer == nil {
			return c.JSON(http.StatusUnprocessableEntity, apiError{Message: "async sync is not available"})
		}

		if err := s.enqueuer.EnqueueSync(c.Request().Context(), req.OrgID, req.Provider, req.SyncType); err != nil {
			return errorResponse(c, statusFor(err), err)
		}

		return c.JSON(http.StatusAccepted, map[string]string{"status": "enqueued"})
	}

	opts := models.SyncOptions{
		Type:     req.SyncType,
		Entities: req.Entities,
		Cursor:   req.Cursor,
		Limit:    req.Limit,
		DryRun:   req.DryRun,
	}

	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return c.JSON(http.StatusBadRequest, apiError{Message: "since must be RFC3339"})
		}

		opts.Since = &since
	}

	result, err := s.sync.ExecuteSync(c.Request().Context(), req.OrgID, req.Provider, opts)
	if err != nil {
		s.logger.Warn("manual sync failed",
			zap.String("org_id", req.OrgID),
			zap.String("provider", string(req.Provider)),
			zap.Error(err))

		return errorResponse(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, result)
}

type scheduleRequest struct {
	OrgID    string          `json:"org_id"`
	Provider models.Provider `json:"provider"`
	SyncType models.SyncType `json:"sync_type"`
	CronExpr string          `json:"cron_expr"`
	Enabled  bool            `json:"enabled"`
}

func (s *Server) handleScheduleSync(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Message: err.Error()})
	}

	if req.OrgID == "" || req.Provider == "" {
		return c.JSON(http.StatusBadRequest, apiError{Message: "org_id and provider are required"})
	}

	job := models.SyncJob{
		OrgID:    req.OrgID,
		Provider: req.Provider,
		SyncType: req.SyncType,
		CronExpr: req.CronExpr,
		Enabled:  req.Enabled,
	}

	if err := s.sync.ScheduleSync(c.Request().Context(), &job); err != nil {
		return errorResponse(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleSyncHistory(c echo.Context) error {
	orgID := c.QueryParam("org_id")
	if orgID == "" {
		return c.JSON(http.StatusBadRequest, apiError{Message: "org_id is required"})
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, apiError{Message: "limit must be an integer"})
		}
		limit = n
	}

	entries, err := s.sync.GetSyncHistory(c.Request().Context(), orgID,
		models.Provider(c.QueryParam("provider")), limit)
	if err != nil {
		return errorResponse(c, statusFor(err), err)
	}

	if entries == nil {
		entries = []models.SyncLogEntry{}
	}

	return c.JSON(http.StatusOK, entries)
}

type integrationHealth struct {
	Provider models.Provider      `json:"provider"`
	Health   *models.HealthStatus `json:"health"`
}

func (s *Server) handleIntegrationsHealth(c echo.Context) error {
	orgID := c.QueryParam("org_id")
	if orgID == "" {
		return c.JSON(http.StatusBadRequest, apiError{Message: "org_id is required"})
	}

	adapters, err := s.health.GetIntegrations(c.Request().Context(), orgID,
		models.IntegrationType(c.QueryParam("type")))
	if err != nil {
		return errorResponse(c, statusFor(err), err)
	}

	out := make([]integrationHealth, 0, len(adapters))

	for _, adapter := range adapters {
		status, herr := adapter.HealthCheck(c.Request().Context())
		if herr != nil {
			status = &models.HealthStatus{Healthy: false, Status: "check failed", LastError: herr.Error()}
		}

		out = append(out, integrationHealth{Provider: adapter.Provider(), Health: status})
	}

	return c.JSON(http.StatusOK, out)
}
