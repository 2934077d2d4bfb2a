// Package web is the HTTP surface: webhook intake, manual sync
// triggers, schedule management, history, and health.
package web

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/integration"
	"github.com/unionhall/integration-hub/models"
	"github.com/unionhall/integration-hub/webhook"
)

// SyncService is the engine surface the handlers need.
type SyncService interface {
	ExecuteSync(ctx context.Context, orgID string, provider models.Provider, opts models.SyncOptions) (*models.SyncResult, error)
	ScheduleSync(ctx context.Context, job *models.SyncJob) error
	GetSyncHistory(ctx context.Context, orgID string, provider models.Provider, limit int) ([]models.SyncLogEntry, error)
}

// WebhookService is the router surface the intake handler needs.
type WebhookService interface {
	ProcessWebhook(ctx context.Context, orgID string, provider models.Provider, payload []byte, signature string, headers map[string]string) webhook.Result
}

// HealthSource resolves the live adapters whose health is reported.
type HealthSource interface {
	GetIntegrations(ctx context.Context, orgID string, typ models.IntegrationType) ([]integration.Integration, error)
}

// SyncEnqueuer hands a sync run to the worker queue instead of running
// it inline; satisfied by *queue.Client.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context, orgID string, provider models.Provider, syncType models.SyncType) error
}

type Server struct {
	echo     *echo.Echo
	sync     SyncService
	hooks    WebhookService
	health   HealthSource
	enqueuer SyncEnqueuer
	logger   *zap.Logger
}

type Option func(*Server)

// WithSyncEnqueuer enables async manual syncs; without it requests
// carrying async:true are rejected.
func WithSyncEnqueuer(e SyncEnqueuer) Option {
	return func(s *Server) {
		s.enqueuer = e
	}
}

// WithMetricsGatherer exposes /metrics for the given registry.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

func New(sync SyncService, hooks WebhookService, health HealthSource, logger *zap.Logger, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	s := &Server{
		echo:   e,
		sync:   sync,
		hooks:  hooks,
		health: health,
		logger: logger,
	}

	e.GET("/healthz", s.handleHealthz)

	api := e.Group("/api/v1")
	api.POST("/webhooks/:provider", s.handleWebhook)
	api.POST("/sync", s.handleTriggerSync)
	api.POST("/sync/schedule", s.handleScheduleSync)
	api.GET("/sync/history", s.handleSyncHistory)
	api.GET("/integrations/health", s.handleIntegrationsHealth)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Server) Start(addr string) error {
	s.logger.Info("http server starting", zap.String("addr", addr))
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree, for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
