// Package engine orchestrates sync runs: it guards against concurrent
// duplicate runs per (org, provider, type), resolves incremental
// cursors from the previous successful run, persists the audit trail,
// and manages declarative recurring schedules.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/integration"
	"github.com/unionhall/integration-hub/metrics"
	"github.com/unionhall/integration-hub/models"
)

// AdapterSource resolves a live adapter; satisfied by
// *integration.Factory.
type AdapterSource interface {
	GetIntegration(ctx context.Context, orgID string, provider models.Provider) (integration.Integration, error)
}

type SyncLogStore interface {
	Create(ctx context.Context, entry *models.SyncLogEntry) error
	Update(ctx context.Context, entry *models.SyncLogEntry) error
	// LastSuccess returns the most recent successful entry for the key,
	// or models.ErrNotFound when there has never been one.
	LastSuccess(ctx context.Context, orgID string, provider models.Provider, syncType models.SyncType) (*models.SyncLogEntry, error)
	// History is most-recent-first; provider "" means all providers.
	History(ctx context.Context, orgID string, provider models.Provider, limit int) ([]models.SyncLogEntry, error)
}

type SyncJobStore interface {
	Upsert(ctx context.Context, job *models.SyncJob) error
	ListEnabled(ctx context.Context) ([]models.SyncJob, error)
}

// Scheduler registers recurring sync tasks. At most one task is
// registered per job key; Schedule replaces any prior registration.
type Scheduler interface {
	Schedule(job models.SyncJob) error
	Unschedule(key string) error
}

const defaultHistoryLimit = 50

type Engine struct {
	adapters AdapterSource
	logs     SyncLogStore
	jobs     SyncJobStore
	sched    Scheduler
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mux     sync.Mutex
	running map[string]struct{}
}

type Option func(*Engine)

// WithScheduler wires a recurring-task scheduler; without one,
// ScheduleSync only persists the declarative row.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		e.sched = s
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(adapters AdapterSource, logs SyncLogStore, jobs SyncJobStore, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		adapters: adapters,
		logs:     logs,
		jobs:     jobs,
		logger:   logger,
		now:      time.Now,
		running:  make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func jobKey(orgID string, provider models.Provider, syncType models.SyncType) string {
	return orgID + ":" + string(provider) + ":" + string(syncType)
}

// ExecuteSync runs one sync for (org, provider). A second call for the
// same (org, provider, type) while the first is mid-flight fails fast
// with SYNC_IN_PROGRESS; there is no queueing. The guard is
// process-local only; multi-instance deployments additionally rely on
// the storage layer's single-running-row constraint.
func (e *Engine) ExecuteSync(ctx context.Context, orgID string, provider models.Provider, opts models.SyncOptions) (*models.SyncResult, error) {
	if opts.Type == "" {
		opts.Type = models.SyncTypeFull
	}

	key := jobKey(orgID, provider, opts.Type)

	e.mux.Lock()
	if _, busy := e.running[key]; busy {
		e.mux.Unlock()
		return nil, models.NewSyncError(provider, models.CodeSyncInProgress,
			fmt.Sprintf("sync already running for %s", key))
	}
	e.running[key] = struct{}{}
	e.mux.Unlock()

	defer func() {
		e.mux.Lock()
		delete(e.running, key)
		e.mux.Unlock()
	}()

	started := e.now()
	entry := &models.SyncLogEntry{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Provider:  provider,
		SyncType:  opts.Type,
		Status:    models.SyncStatusRunning,
		StartedAt: started,
	}

	if err := e.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("creating sync log entry: %w", err)
	}

	adapter, err := e.adapters.GetIntegration(ctx, orgID, provider)
	if err != nil {
		e.finish(ctx, entry, models.SyncStatusFailed, err.Error(), nil)
		return nil, err
	}

	if opts.Type == models.SyncTypeIncremental && opts.Since == nil && opts.Cursor == "" {
		e.resolveCursor(ctx, orgID, provider, &opts)
	}

	e.logger.Info("sync started",
		zap.String("org_id", orgID),
		zap.String("provider", string(provider)),
		zap.String("sync_type", string(opts.Type)),
		zap.String("cursor", opts.Cursor))

	result, err := adapter.Sync(ctx, opts)
	if err != nil {
		e.finish(ctx, entry, models.SyncStatusFailed, err.Error(), nil)
		return nil, err
	}

	status := models.SyncStatusSuccess
	errMsg := ""

	if result.RecordsFailed > 0 {
		status = models.SyncStatusFailed
		if len(result.Errors) > 0 {
			errMsg = result.Errors[0]
		}
	}

	e.finish(ctx, entry, status, errMsg, result)

	e.metrics.ObserveSync(string(provider), string(opts.Type), string(status),
		e.now().Sub(started),
		result.RecordsProcessed, result.RecordsCreated, result.RecordsUpdated, result.RecordsFailed)

	return result, nil
}

func (e *Engine) ExecuteFullSync(ctx context.Context, orgID string, provider models.Provider) (*models.SyncResult, error) {
	return e.ExecuteSync(ctx, orgID, provider, models.SyncOptions{Type: models.SyncTypeFull})
}

func (e *Engine) ExecuteIncrementalSync(ctx context.Context, orgID string, provider models.Provider) (*models.SyncResult, error) {
	return e.ExecuteSync(ctx, orgID, provider, models.SyncOptions{Type: models.SyncTypeIncremental})
}

// resolveCursor fills in Since/Cursor from the most recent successful
// run. The cursor is opaque; the only interpretation performed here is
// treating an RFC3339 value as the incremental watermark.
func (e *Engine) resolveCursor(ctx context.Context, orgID string, provider models.Provider, opts *models.SyncOptions) {
	last, err := e.logs.LastSuccess(ctx, orgID, provider, opts.Type)
	if err != nil {
		if err != models.ErrNotFound {
			e.logger.Warn("last successful sync lookup failed",
				zap.String("org_id", orgID),
				zap.String("provider", string(provider)),
				zap.Error(err))
		}

		return
	}

	if last.Cursor == "" {
		return
	}

	opts.Cursor = last.Cursor

	if since, perr := time.Parse(time.RFC3339, last.Cursor); perr == nil {
		opts.Since = &since
	}
}

func (e *Engine) finish(ctx context.Context, entry *models.SyncLogEntry, status models.SyncStatus, errMsg string, result *models.SyncResult) {
	completed := e.now()
	entry.Status = status
	entry.Error = errMsg
	entry.CompletedAt = &completed

	if result != nil {
		entry.RecordsProcessed = result.RecordsProcessed
		entry.RecordsCreated = result.RecordsCreated
		entry.RecordsUpdated = result.RecordsUpdated
		entry.RecordsFailed = result.RecordsFailed
		entry.Cursor = result.Cursor
	}

	if err := e.logs.Update(ctx, entry); err != nil {
		e.logger.Error("updating sync log entry failed",
			zap.String("entry_id", entry.ID), zap.Error(err))
	}
}

// ScheduleSync persists the declarative job and (re)registers its
// recurring task. A disabled job or empty cron expression leaves only
// the persisted row; any previously registered task under the same key
// is removed either way.
func (e *Engine) ScheduleSync(ctx context.Context, job *models.SyncJob) error {
	if job.SyncType == "" {
		job.SyncType = models.SyncTypeIncremental
	}

	if job.Enabled && job.CronExpr != "" && !gronx.New().IsValid(job.CronExpr) {
		return models.NewIntegrationError(job.Provider, models.CodeInvalidSchedule,
			fmt.Sprintf("invalid cron expression %q", job.CronExpr))
	}

	if err := e.jobs.Upsert(ctx, job); err != nil {
		return fmt.Errorf("persisting sync job: %w", err)
	}

	if e.sched == nil {
		return nil
	}

	key := job.Key()

	if err := e.sched.Unschedule(key); err != nil {
		e.logger.Warn("unscheduling previous task failed", zap.String("key", key), zap.Error(err))
	}

	if !job.Enabled || job.CronExpr == "" {
		return nil
	}

	if err := e.sched.Schedule(*job); err != nil {
		return fmt.Errorf("registering recurring sync: %w", err)
	}

	e.logger.Info("sync scheduled",
		zap.String("key", key), zap.String("cron", job.CronExpr))

	return nil
}

// RestoreSchedules re-registers every enabled persisted job, called
// once at process start.
func (e *Engine) RestoreSchedules(ctx context.Context) error {
	if e.sched == nil {
		return nil
	}

	jobs, err := e.jobs.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("listing sync jobs: %w", err)
	}

	for i := range jobs {
		if jobs[i].CronExpr == "" {
			continue
		}

		if err := e.sched.Schedule(jobs[i]); err != nil {
			e.logger.Error("restoring schedule failed",
				zap.String("key", jobs[i].Key()), zap.Error(err))
		}
	}

	return nil
}

// RunScheduled executes one scheduled tick. Failures are logged, never
// returned, so the scheduler keeps running; SYNC_IN_PROGRESS means the
// previous tick is still going and is only worth a warning.
func (e *Engine) RunScheduled(ctx context.Context, orgID string, provider models.Provider, syncType models.SyncType) {
	_, err := e.ExecuteSync(ctx, orgID, provider, models.SyncOptions{Type: syncType})
	if err == nil {
		return
	}

	if models.IsCode(err, models.CodeSyncInProgress) {
		e.logger.Warn("scheduled sync skipped, previous run still in progress",
			zap.String("org_id", orgID), zap.String("provider", string(provider)))

		return
	}

	e.logger.Error("scheduled sync failed",
		zap.String("org_id", orgID),
		zap.String("provider", string(provider)),
		zap.String("sync_type", string(syncType)),
		zap.Error(err))
}

func (e *Engine) GetSyncHistory(ctx context.Context, orgID string, provider models.Provider, limit int) ([]models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	return e.logs.History(ctx, orgID, provider, limit)
}
