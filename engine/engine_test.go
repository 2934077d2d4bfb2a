package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/integration"
	"github.com/unionhall/integration-hub/models"
)

type stubAdapter struct {
	provider models.Provider
	syncFn   func(ctx context.Context, opts models.SyncOptions) (*models.SyncResult, error)
	gotOpts  []models.SyncOptions
	mu       sync.Mutex
}

func (a *stubAdapter) Provider() models.Provider                                    { return a.provider }
func (a *stubAdapter) Initialize(context.Context, *models.IntegrationConfig) error  { return nil }
func (a *stubAdapter) Connect(context.Context) error                                { return nil }
func (a *stubAdapter) Disconnect(context.Context) error                             { return nil }
func (a *stubAdapter) VerifyWebhook([]byte, string) bool                            { return true }
func (a *stubAdapter) ProcessWebhook(context.Context, *models.WebhookEvent) error   { return nil }

func (a *stubAdapter) HealthCheck(context.Context) (*models.HealthStatus, error) {
	return &models.HealthStatus{Healthy: true}, nil
}

func (a *stubAdapter) Sync(ctx context.Context, opts models.SyncOptions) (*models.SyncResult, error) {
	a.mu.Lock()
	a.gotOpts = append(a.gotOpts, opts)
	a.mu.Unlock()

	if a.syncFn != nil {
		return a.syncFn(ctx, opts)
	}

	return &models.SyncResult{Success: true, RecordsProcessed: 1, RecordsCreated: 1}, nil
}

func (a *stubAdapter) lastOpts() models.SyncOptions {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.gotOpts[len(a.gotOpts)-1]
}

type stubAdapterSource struct {
	adapter *stubAdapter
	err     error
}

func (s *stubAdapterSource) GetIntegration(context.Context, string, models.Provider) (integration.Integration, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.adapter, nil
}

type memLogStore struct {
	mu      sync.Mutex
	entries []*models.SyncLogEntry
}

func (s *memLogStore) Create(_ context.Context, entry *models.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries = append(s.entries, &cp)

	return nil
}

func (s *memLogStore) Update(_ context.Context, entry *models.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == entry.ID {
			cp := *entry
			s.entries[i] = &cp

			return nil
		}
	}

	return models.ErrNotFound
}

func (s *memLogStore) LastSuccess(_ context.Context, orgID string, provider models.Provider, syncType models.SyncType) (*models.SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.SyncLogEntry

	for _, e := range s.entries {
		if e.OrgID == orgID && e.Provider == provider && e.SyncType == syncType && e.Status == models.SyncStatusSuccess {
			if best == nil || e.StartedAt.After(best.StartedAt) {
				best = e
			}
		}
	}

	if best == nil {
		return nil, models.ErrNotFound
	}

	cp := *best

	return &cp, nil
}

func (s *memLogStore) History(_ context.Context, orgID string, provider models.Provider, limit int) ([]models.SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.SyncLogEntry

	for _, e := range s.entries {
		if e.OrgID != orgID {
			continue
		}

		if provider != "" && e.Provider != provider {
			continue
		}

		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (s *memLogStore) byID(id string) *models.SyncLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			cp := *e
			return &cp
		}
	}

	return nil
}

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]models.SyncJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]models.SyncJob)}
}

func (s *memJobStore) Upsert(_ context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = job.Key()
	}

	s.jobs[job.Key()] = *job

	return nil
}

func (s *memJobStore) ListEnabled(context.Context) ([]models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.SyncJob

	for _, j := range s.jobs {
		if j.Enabled {
			out = append(out, j)
		}
	}

	return out, nil
}

type recordingScheduler struct {
	mu          sync.Mutex
	scheduled   []models.SyncJob
	unscheduled []string
	scheduleErr error
}

func (s *recordingScheduler) Schedule(job models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduleErr != nil {
		return s.scheduleErr
	}

	s.scheduled = append(s.scheduled, job)

	return nil
}

func (s *recordingScheduler) Unschedule(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unscheduled = append(s.unscheduled, key)

	return nil
}

func newTestEngine(t *testing.T, adapter *stubAdapter, opts ...Option) (*Engine, *memLogStore, *memJobStore) {
	t.Helper()

	logs := &memLogStore{}
	jobs := newMemJobStore()
	e := New(&stubAdapterSource{adapter: adapter}, logs, jobs, zap.NewNop(), opts...)

	return e, logs, jobs
}

func TestExecuteSyncRejectsConcurrentDuplicate(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})

	var enteredOnce sync.Once

	adapter := &stubAdapter{
		provider: models.ProviderSlack,
		syncFn: func(_ context.Context, opts models.SyncOptions) (*models.SyncResult, error) {
			if opts.Type != models.SyncTypeFull {
				return &models.SyncResult{Success: true}, nil
			}

			enteredOnce.Do(func() { close(entered) })
			<-release

			return &models.SyncResult{Success: true}, nil
		},
	}

	e, _, _ := newTestEngine(t, adapter)

	done := make(chan error, 1)
	go func() {
		_, err := e.ExecuteFullSync(ctx, "acme", models.ProviderSlack)
		done <- err
	}()

	<-entered

	_, err := e.ExecuteFullSync(ctx, "acme", models.ProviderSlack)
	assert.True(t, models.IsCode(err, models.CodeSyncInProgress))

	// a different type under the same org/provider is not blocked
	_, err = e.ExecuteIncrementalSync(ctx, "acme", models.ProviderSlack)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	// guard released after completion
	_, err = e.ExecuteFullSync(ctx, "acme", models.ProviderSlack)
	require.NoError(t, err)
}

func TestExecuteSyncGuardReleasedOnFailure(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{
		provider: models.ProviderSlack,
		syncFn: func(context.Context, models.SyncOptions) (*models.SyncResult, error) {
			return nil, errors.New("connection reset")
		},
	}

	e, _, _ := newTestEngine(t, adapter)

	_, err := e.ExecuteFullSync(ctx, "acme", models.ProviderSlack)
	require.EqualError(t, err, "connection reset")

	// the run is auditable as failed
	history, herr := e.GetSyncHistory(ctx, "acme", models.ProviderSlack, 10)
	require.NoError(t, herr)
	require.Len(t, history, 1)
	assert.Equal(t, models.SyncStatusFailed, history[0].Status)
	assert.Equal(t, "connection reset", history[0].Error)
	require.NotNil(t, history[0].CompletedAt)

	// and the guard is free again
	adapter.syncFn = nil
	_, err = e.ExecuteFullSync(ctx, "acme", models.ProviderSlack)
	require.NoError(t, err)
}

func TestExecuteSyncPartialFailuresMarkRunFailed(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{
		provider: models.ProviderQuickBooks,
		syncFn: func(context.Context, models.SyncOptions) (*models.SyncResult, error) {
			return &models.SyncResult{
				RecordsProcessed: 10,
				RecordsCreated:   8,
				RecordsFailed:    2,
				Errors:           []string{"invoice 442: missing due date", "invoice 443: bad currency"},
			}, nil
		},
	}

	e, _, _ := newTestEngine(t, adapter)

	result, err := e.ExecuteFullSync(ctx, "acme", models.ProviderQuickBooks)
	require.NoError(t, err, "partial failures do not abort the run")
	assert.Equal(t, 2, result.RecordsFailed)

	history, _ := e.GetSyncHistory(ctx, "acme", models.ProviderQuickBooks, 1)
	require.Len(t, history, 1)
	assert.Equal(t, models.SyncStatusFailed, history[0].Status)
	assert.Equal(t, "invoice 442: missing due date", history[0].Error)
	assert.Equal(t, 10, history[0].RecordsProcessed)
}

func TestExecuteSyncFirstIncrementalRunHasNoCursor(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{provider: models.ProviderSlack}
	e, _, _ := newTestEngine(t, adapter)

	_, err := e.ExecuteIncrementalSync(ctx, "acme", models.ProviderSlack)
	require.NoError(t, err)

	got := adapter.lastOpts()
	assert.Nil(t, got.Since)
	assert.Empty(t, got.Cursor)
	assert.Equal(t, models.SyncTypeIncremental, got.Type)
}

func TestExecuteSyncIncrementalCursorHandoff(t *testing.T) {
	ctx := context.Background()
	cursor := "2024-01-01T00:00:00Z"

	adapter := &stubAdapter{
		provider: models.ProviderSlack,
		syncFn: func(context.Context, models.SyncOptions) (*models.SyncResult, error) {
			return &models.SyncResult{Success: true, Cursor: cursor}, nil
		},
	}

	e, _, _ := newTestEngine(t, adapter)

	_, err := e.ExecuteIncrementalSync(ctx, "acme", models.ProviderSlack)
	require.NoError(t, err)

	// second incremental run picks the persisted cursor up
	adapter.syncFn = nil
	_, err = e.ExecuteIncrementalSync(ctx, "acme", models.ProviderSlack)
	require.NoError(t, err)

	got := adapter.lastOpts()
	assert.Equal(t, cursor, got.Cursor)
	require.NotNil(t, got.Since)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got.Since.UTC())
}

func TestExecuteSyncCallerSuppliedCursorWins(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{
		provider: models.ProviderSlack,
		syncFn: func(context.Context, models.SyncOptions) (*models.SyncResult, error) {
			return &models.SyncResult{Success: true, Cursor: "2024-05-05T00:00:00Z"}, nil
		},
	}

	e, _, _ := newTestEngine(t, adapter)

	_, err := e.ExecuteIncrementalSync(ctx, "acme", models.ProviderSlack)
	require.NoError(t, err)

	adapter.syncFn = nil
	_, err = e.ExecuteSync(ctx, "acme", models.ProviderSlack, models.SyncOptions{
		Type:   models.SyncTypeIncremental,
		Cursor: "custom-opaque-cursor",
	})
	require.NoError(t, err)

	got := adapter.lastOpts()
	assert.Equal(t, "custom-opaque-cursor", got.Cursor)
	assert.Nil(t, got.Since, "non-RFC3339 caller cursor is passed through untouched")
}

func TestExecuteSyncAdapterResolutionFailureIsAudited(t *testing.T) {
	ctx := context.Background()
	logs := &memLogStore{}
	src := &stubAdapterSource{err: models.NewIntegrationError(models.ProviderSlack, models.CodeConfigNotFound, "no config")}
	e := New(src, logs, newMemJobStore(), zap.NewNop())

	_, err := e.ExecuteFullSync(ctx, "acme", models.ProviderSlack)
	assert.True(t, models.IsCode(err, models.CodeConfigNotFound))

	history, _ := e.GetSyncHistory(ctx, "acme", models.ProviderSlack, 1)
	require.Len(t, history, 1)
	assert.Equal(t, models.SyncStatusFailed, history[0].Status)
}

func TestExecuteSyncPersistsRunningThenTerminalRow(t *testing.T) {
	ctx := context.Background()

	var runningSeen bool

	logs := &memLogStore{}
	adapter := &stubAdapter{provider: models.ProviderSlack}
	adapter.syncFn = func(context.Context, models.SyncOptions) (*models.SyncResult, error) {
		// while the adapter runs, the log row must already exist as running
		logs.mu.Lock()
		for _, e := range logs.entries {
			if e.Status == models.SyncStatusRunning {
				runningSeen = true
			}
		}
		logs.mu.Unlock()

		return &models.SyncResult{Success: true, RecordsProcessed: 3, RecordsCreated: 3, Cursor: "2024-02-02T00:00:00Z"}, nil
	}

	e := New(&stubAdapterSource{adapter: adapter}, logs, newMemJobStore(), zap.NewNop())

	_, err := e.ExecuteIncrementalSync(ctx, "acme", models.ProviderSlack)
	require.NoError(t, err)
	assert.True(t, runningSeen)

	require.Len(t, logs.entries, 1)
	final := logs.byID(logs.entries[0].ID)
	assert.Equal(t, models.SyncStatusSuccess, final.Status)
	assert.Equal(t, "2024-02-02T00:00:00Z", final.Cursor)
	assert.Equal(t, 3, final.RecordsProcessed)
	require.NotNil(t, final.CompletedAt)
}

func TestScheduleSyncValidatesCron(t *testing.T) {
	ctx := context.Background()
	sched := &recordingScheduler{}
	adapter := &stubAdapter{provider: models.ProviderSlack}
	e, _, jobs := newTestEngine(t, adapter, WithScheduler(sched))

	err := e.ScheduleSync(ctx, &models.SyncJob{
		OrgID:    "acme",
		Provider: models.ProviderSlack,
		SyncType: models.SyncTypeIncremental,
		CronExpr: "not a cron",
		Enabled:  true,
	})
	assert.True(t, models.IsCode(err, models.CodeInvalidSchedule))
	assert.Empty(t, jobs.jobs, "invalid schedules are not persisted")

	err = e.ScheduleSync(ctx, &models.SyncJob{
		OrgID:    "acme",
		Provider: models.ProviderSlack,
		SyncType: models.SyncTypeIncremental,
		CronExpr: "*/15 * * * *",
		Enabled:  true,
	})
	require.NoError(t, err)
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, "*/15 * * * *", sched.scheduled[0].CronExpr)
	assert.Equal(t, []string{"acme:slack:incremental"}, sched.unscheduled,
		"prior registration under the same key is replaced")
}

func TestScheduleSyncDisabledJobOnlyPersists(t *testing.T) {
	ctx := context.Background()
	sched := &recordingScheduler{}
	adapter := &stubAdapter{provider: models.ProviderSlack}
	e, _, jobs := newTestEngine(t, adapter, WithScheduler(sched))

	err := e.ScheduleSync(ctx, &models.SyncJob{
		OrgID:    "acme",
		Provider: models.ProviderSlack,
		SyncType: models.SyncTypeFull,
		CronExpr: "0 3 * * *",
		Enabled:  false,
	})
	require.NoError(t, err)
	assert.Len(t, jobs.jobs, 1)
	assert.Empty(t, sched.scheduled)
	assert.Equal(t, []string{"acme:slack:full"}, sched.unscheduled)
}

func TestRestoreSchedules(t *testing.T) {
	ctx := context.Background()
	sched := &recordingScheduler{}
	adapter := &stubAdapter{provider: models.ProviderSlack}
	e, _, jobs := newTestEngine(t, adapter, WithScheduler(sched))

	require.NoError(t, jobs.Upsert(ctx, &models.SyncJob{
		OrgID: "acme", Provider: models.ProviderSlack,
		SyncType: models.SyncTypeIncremental, CronExpr: "*/5 * * * *", Enabled: true,
	}))
	require.NoError(t, jobs.Upsert(ctx, &models.SyncJob{
		OrgID: "acme", Provider: models.ProviderQuickBooks,
		SyncType: models.SyncTypeFull, CronExpr: "0 4 * * *", Enabled: false,
	}))

	require.NoError(t, e.RestoreSchedules(ctx))
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, models.ProviderSlack, sched.scheduled[0].Provider)
}

func TestRunScheduledSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{
		provider: models.ProviderSlack,
		syncFn: func(context.Context, models.SyncOptions) (*models.SyncResult, error) {
			return nil, errors.New("upstream 500")
		},
	}

	e, _, _ := newTestEngine(t, adapter)

	assert.NotPanics(t, func() {
		e.RunScheduled(ctx, "acme", models.ProviderSlack, models.SyncTypeIncremental)
	})
}

func TestGetSyncHistoryDefaultsAndOrder(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{provider: models.ProviderSlack}
	e, logs, _ := newTestEngine(t, adapter)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, logs.Create(ctx, &models.SyncLogEntry{
			ID:        uuidLike(i),
			OrgID:     "acme",
			Provider:  models.ProviderSlack,
			SyncType:  models.SyncTypeFull,
			Status:    models.SyncStatusSuccess,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	history, err := e.GetSyncHistory(ctx, "acme", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].StartedAt.After(history[1].StartedAt))
	assert.True(t, history[1].StartedAt.After(history[2].StartedAt))
}

func uuidLike(i int) string {
	return string(rune('a'+i)) + "-entry"
}
