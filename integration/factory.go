package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/models"
	"github.com/unionhall/integration-hub/registry"
)

// Factory resolves and caches live adapter instances. One Factory is
// constructed at the composition root and shared by the sync engine and
// the webhook router; the cache key is "org:provider".
type Factory struct {
	store        ConfigStore
	constructors map[models.Provider]Constructor
	logger       *zap.Logger
	lookupEnv    func(string) (string, bool)

	mux   sync.RWMutex
	cache map[string]Integration
}

type FactoryOption func(*Factory)

func WithConstructor(p models.Provider, c Constructor) FactoryOption {
	return func(f *Factory) {
		f.constructors[p] = c
	}
}

// WithLookupEnv overrides environment lookups, for tests.
func WithLookupEnv(fn func(string) (string, bool)) FactoryOption {
	return func(f *Factory) {
		f.lookupEnv = fn
	}
}

func NewFactory(store ConfigStore, logger *zap.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		store:        store,
		constructors: make(map[models.Provider]Constructor),
		logger:       logger,
		cache:        make(map[string]Integration),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func cacheKey(orgID string, provider models.Provider) string {
	return orgID + ":" + string(provider)
}

// GetIntegration returns the cached adapter for (org, provider), or
// resolves one: registry availability, env var presence, stored config,
// construction, Initialize, then cache. Cache hits skip every check.
func (f *Factory) GetIntegration(ctx context.Context, orgID string, provider models.Provider) (Integration, error) {
	key := cacheKey(orgID, provider)

	f.mux.RLock()
	if inst, ok := f.cache[key]; ok {
		f.mux.RUnlock()
		return inst, nil
	}
	f.mux.RUnlock()

	info, ok := registry.Lookup(provider)
	if !ok {
		return nil, models.NewIntegrationError(provider, models.CodeUnknownProvider,
			fmt.Sprintf("provider %q is not known", provider))
	}

	if !info.Available {
		return nil, models.NewIntegrationError(provider, models.CodeProviderUnavailable,
			fmt.Sprintf("provider %q is not available yet", provider))
	}

	if missing := registry.MissingEnvVars(info, f.lookupEnv); len(missing) > 0 {
		return nil, models.NewIntegrationError(provider, models.CodeMissingEnvVars,
			"missing environment variables: "+strings.Join(missing, ", "))
	}

	cfg, err := f.store.GetConfig(ctx, orgID, provider)
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.NewIntegrationError(provider, models.CodeConfigNotFound,
				fmt.Sprintf("no integration config for org %q", orgID))
		}

		return nil, fmt.Errorf("loading integration config: %w", err)
	}

	if !cfg.Enabled {
		return nil, models.NewIntegrationError(provider, models.CodeIntegrationDisabled,
			fmt.Sprintf("integration disabled for org %q", orgID))
	}

	construct, ok := f.constructors[provider]
	if !ok {
		return nil, models.NewIntegrationError(provider, models.CodeNotImplemented,
			fmt.Sprintf("no adapter registered for provider %q", provider))
	}

	inst := construct()
	if err := inst.Initialize(ctx, cfg); err != nil {
		return nil, fmt.Errorf("initializing %s adapter: %w", provider, err)
	}

	f.mux.Lock()
	defer f.mux.Unlock()

	// another goroutine may have resolved the same key meanwhile; keep
	// the first instance so callers observe a single live adapter
	if existing, ok := f.cache[key]; ok {
		return existing, nil
	}

	f.cache[key] = inst

	f.logger.Info("integration initialized",
		zap.String("org_id", orgID),
		zap.String("provider", string(provider)))

	return inst, nil
}

// GetIntegrations resolves every enabled integration for the org,
// optionally filtered by type. Per-provider failures are logged and
// skipped so one broken integration does not abort the batch.
func (f *Factory) GetIntegrations(ctx context.Context, orgID string, typ models.IntegrationType) ([]Integration, error) {
	cfgs, err := f.store.ListEnabledConfigs(ctx, orgID, typ)
	if err != nil {
		return nil, fmt.Errorf("listing integration configs: %w", err)
	}

	out := make([]Integration, 0, len(cfgs))

	for i := range cfgs {
		inst, err := f.GetIntegration(ctx, orgID, cfgs[i].Provider)
		if err != nil {
			f.logger.Warn("skipping integration",
				zap.String("org_id", orgID),
				zap.String("provider", string(cfgs[i].Provider)),
				zap.Error(err))

			continue
		}

		out = append(out, inst)
	}

	return out, nil
}

// ClearCache drops the cached instance for (org, provider). The next
// GetIntegration re-reads configuration and reconnects.
func (f *Factory) ClearCache(ctx context.Context, orgID string, provider models.Provider) {
	key := cacheKey(orgID, provider)

	f.mux.Lock()
	inst, ok := f.cache[key]
	delete(f.cache, key)
	f.mux.Unlock()

	if ok {
		if err := inst.Disconnect(ctx); err != nil {
			f.logger.Warn("disconnect on cache clear failed",
				zap.String("provider", string(provider)), zap.Error(err))
		}
	}
}

// ClearAllCache drops every cached instance. Disconnect failures are
// collected; the cache is emptied regardless.
func (f *Factory) ClearAllCache(ctx context.Context) error {
	f.mux.Lock()
	old := f.cache
	f.cache = make(map[string]Integration)
	f.mux.Unlock()

	var errs error

	for key, inst := range old {
		if err := inst.Disconnect(ctx); err != nil {
			f.logger.Warn("disconnect on cache clear failed",
				zap.String("key", key), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errs
}

// CacheSize is exposed for the health endpoint.
func (f *Factory) CacheSize() int {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return len(f.cache)
}
