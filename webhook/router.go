// Package webhook routes inbound provider events: it derives a
// content-based event id, enforces idempotent delivery, verifies the
// signature with the provider's adapter, and dispatches processing with
// bounded retry.
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/dedup"
	"github.com/unionhall/integration-hub/integration"
	"github.com/unionhall/integration-hub/metrics"
	"github.com/unionhall/integration-hub/models"
)

// AdapterSource resolves a live adapter; satisfied by
// *integration.Factory.
type AdapterSource interface {
	GetIntegration(ctx context.Context, orgID string, provider models.Provider) (integration.Integration, error)
}

type EventStore interface {
	Create(ctx context.Context, event *models.WebhookEvent) error
	// Get returns models.ErrNotFound when the event id was never seen.
	Get(ctx context.Context, id string) (*models.WebhookEvent, error)
	UpdateStatus(ctx context.Context, id string, status models.WebhookStatus, attempts int, errMsg string) error
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []models.WebhookStatus) (int64, error)
}

// Result is what the HTTP handler turns into a response. Processing
// failures are reported here, not returned as errors.
type Result struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	defaultMaxRetries  = 3
	defaultRetryDelay  = time.Second
	defaultCleanupDays = 30
	eventIDHashLen     = 16
)

type Router struct {
	adapters AdapterSource
	events   EventStore
	seen     dedup.Cache
	logger   *zap.Logger
	metrics  *metrics.Metrics

	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Router)

func WithMaxRetries(n int) Option {
	return func(r *Router) {
		r.maxRetries = n
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(r *Router) {
		r.retryDelay = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// WithSleep overrides the inter-retry wait, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Router) {
		r.sleep = fn
	}
}

func NewRouter(adapters AdapterSource, events EventStore, seen dedup.Cache, logger *zap.Logger, opts ...Option) *Router {
	r := &Router{
		adapters:   adapters,
		events:     events,
		seen:       seen,
		logger:     logger,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
		sleep:      sleepCtx,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EventID derives the delivery identity from the exact payload bytes:
// byte-identical redeliveries collapse onto one event, payloads that
// differ by a single byte are distinct events.
func EventID(provider models.Provider, payload []byte) string {
	sum := sha256.Sum256(payload)
	return string(provider) + "_" + hex.EncodeToString(sum[:])[:eventIDHashLen]
}

// ProcessWebhook runs the full intake pipeline for one delivery.
// Signature rejection is terminal with no retry; processing failures
// are retried with linearly increasing delay before the event is marked
// failed.
func (r *Router) ProcessWebhook(ctx context.Context, orgID string, provider models.Provider, payload []byte, signature string, headers map[string]string) Result {
	eventID := EventID(provider, payload)

	logger := r.logger.With(
		zap.String("org_id", orgID),
		zap.String("provider", string(provider)),
		zap.String("event_id", eventID))

	if r.alreadyProcessed(ctx, eventID) {
		logger.Debug("duplicate webhook delivery, skipping")
		r.metrics.ObserveWebhook(string(provider), "duplicate")

		return Result{Success: true, EventID: eventID}
	}

	adapter, err := r.adapters.GetIntegration(ctx, orgID, provider)
	if err != nil {
		logger.Warn("webhook adapter resolution failed", zap.Error(err))
		return Result{Success: false, EventID: eventID, Error: err.Error()}
	}

	if !adapter.VerifyWebhook(payload, signature) {
		werr := models.NewWebhookError(provider, "webhook signature verification failed")
		logger.Warn("webhook rejected", zap.Error(werr))
		r.metrics.ObserveWebhook(string(provider), "rejected")

		r.persistFailure(ctx, orgID, provider, eventID, payload, signature, false, werr.Error())

		return Result{Success: false, EventID: eventID, Error: werr.Error()}
	}

	eventType, err := ExtractEventType(provider, payload)
	if err != nil {
		// malformed JSON is deterministic, retrying cannot help
		logger.Warn("webhook payload unparseable", zap.Error(err))
		r.metrics.ObserveWebhook(string(provider), "failed")

		r.persistFailure(ctx, orgID, provider, eventID, payload, signature, true, err.Error())

		return Result{Success: false, EventID: eventID, Error: err.Error()}
	}

	event := &models.WebhookEvent{
		ID:         eventID,
		OrgID:      orgID,
		Provider:   provider,
		EventType:  eventType,
		Status:     models.WebhookStatusReceived,
		Payload:    payload,
		Signature:  signature,
		Verified:   true,
		ReceivedAt: r.now(),
	}

	if eventType == "" {
		// verified but not an event kind we act on
		event.Status = models.WebhookStatusIgnored

		if err := r.events.Create(ctx, event); err != nil {
			logger.Error("persisting ignored webhook event failed", zap.Error(err))
		}

		r.seen.Mark(ctx, eventID)
		r.metrics.ObserveWebhook(string(provider), string(models.WebhookStatusIgnored))

		return Result{Success: true, EventID: eventID}
	}

	if err := r.events.Create(ctx, event); err != nil {
		logger.Error("persisting webhook event failed", zap.Error(err))
		return Result{Success: false, EventID: eventID, Error: err.Error()}
	}

	if err := r.processWithRetry(ctx, adapter, event, logger); err != nil {
		if uerr := r.events.UpdateStatus(ctx, eventID, models.WebhookStatusFailed, event.Attempts, err.Error()); uerr != nil {
			logger.Error("marking webhook event failed failed", zap.Error(uerr))
		}

		r.metrics.ObserveWebhook(string(provider), string(models.WebhookStatusFailed))

		return Result{Success: false, EventID: eventID, Error: err.Error()}
	}

	if err := r.events.MarkProcessed(ctx, eventID, r.now()); err != nil {
		logger.Error("marking webhook event processed failed", zap.Error(err))
	}

	r.seen.Mark(ctx, eventID)
	r.metrics.ObserveWebhook(string(provider), string(models.WebhookStatusProcessed))

	logger.Info("webhook processed", zap.String("event_type", eventType))

	return Result{Success: true, EventID: eventID}
}

// alreadyProcessed consults the process-local cache first, then the
// authoritative persisted status.
func (r *Router) alreadyProcessed(ctx context.Context, eventID string) bool {
	if r.seen.Seen(ctx, eventID) {
		return true
	}

	existing, err := r.events.Get(ctx, eventID)
	if err != nil {
		if err != models.ErrNotFound {
			r.logger.Warn("webhook event lookup failed", zap.String("event_id", eventID), zap.Error(err))
		}

		return false
	}

	if existing.Status == models.WebhookStatusProcessed || existing.Status == models.WebhookStatusIgnored {
		r.seen.Mark(ctx, eventID)
		return true
	}

	return false
}

// processWithRetry attempts the adapter call up to maxRetries times
// with linearly increasing delay, moving the row through
// processing/processed on each attempt.
func (r *Router) processWithRetry(ctx context.Context, adapter integration.Integration, event *models.WebhookEvent, logger *zap.Logger) error {
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		event.Attempts = attempt

		if err := r.events.UpdateStatus(ctx, event.ID, models.WebhookStatusProcessing, attempt, ""); err != nil {
			logger.Error("marking webhook event processing failed", zap.Error(err))
		}

		if lastErr = adapter.ProcessWebhook(ctx, event); lastErr == nil {
			return nil
		}

		logger.Warn("webhook processing attempt failed",
			zap.Int("attempt", attempt), zap.Error(lastErr))

		if attempt == r.maxRetries {
			break
		}

		r.metrics.ObserveWebhookRetry(string(event.Provider))

		if err := r.sleep(ctx, time.Duration(attempt)*r.retryDelay); err != nil {
			return fmt.Errorf("webhook retry interrupted: %w", err)
		}
	}

	return fmt.Errorf("webhook processing failed after %d attempts: %w", r.maxRetries, lastErr)
}

func (r *Router) persistFailure(ctx context.Context, orgID string, provider models.Provider, eventID string, payload []byte, signature string, verified bool, errMsg string) {
	event := &models.WebhookEvent{
		ID:         eventID,
		OrgID:      orgID,
		Provider:   provider,
		Status:     models.WebhookStatusFailed,
		Payload:    payload,
		Signature:  signature,
		Verified:   verified,
		Error:      errMsg,
		ReceivedAt: r.now(),
	}

	if err := r.events.Create(ctx, event); err != nil {
		r.logger.Error("persisting failed webhook event failed",
			zap.String("event_id", eventID), zap.Error(err))
	}
}

// CleanupOldEvents removes terminal processed/ignored rows older than
// daysOld days. Administrative housekeeping, not part of the hot path.
func (r *Router) CleanupOldEvents(ctx context.Context, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = defaultCleanupDays
	}

	cutoff := r.now().AddDate(0, 0, -daysOld)

	return r.events.DeleteOlderThan(ctx, cutoff,
		[]models.WebhookStatus{models.WebhookStatusProcessed, models.WebhookStatusIgnored})
}
