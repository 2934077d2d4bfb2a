package runner

import (
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/dedup"
	"github.com/unionhall/integration-hub/engine"
	"github.com/unionhall/integration-hub/integration"
	"github.com/unionhall/integration-hub/metrics"
	"github.com/unionhall/integration-hub/models"
	"github.com/unionhall/integration-hub/postgres"
	"github.com/unionhall/integration-hub/providers/bamboohr"
	"github.com/unionhall/integration-hub/providers/quickbooks"
	"github.com/unionhall/integration-hub/providers/slack"
	"github.com/unionhall/integration-hub/providers/sunlife"
	"github.com/unionhall/integration-hub/providers/workday"
	"github.com/unionhall/integration-hub/webhook"
)

// Core is the object graph shared by the serve and worker runners:
// storage, factory, engine, and webhook router, wired once.
type Core struct {
	DB       *sql.DB
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Factory  *integration.Factory
	Engine   *engine.Engine
	Router   *webhook.Router
}

// BuildCore connects to Postgres, runs migrations, and assembles the
// integration stack. Extra engine options let the serve runner attach
// its scheduler.
func BuildCore(cfg *Config, logger *zap.Logger, engineOpts ...engine.Option) (*Core, error) {
	db, err := postgres.Open(cfg.Dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	if err := postgres.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New(promRegistry)

	configs := postgres.NewConfigRepository(db)
	records := postgres.NewRecordRepository(db)
	logs := postgres.NewSyncLogRepository(db)
	jobs := postgres.NewSyncJobRepository(db)
	events := postgres.NewWebhookEventRepository(db)

	factory := integration.NewFactory(configs, logger,
		integration.WithConstructor(models.ProviderSlack, func() integration.Integration {
			return slack.New(records, logger)
		}),
		integration.WithConstructor(models.ProviderQuickBooks, func() integration.Integration {
			return quickbooks.New(records, logger)
		}),
		integration.WithConstructor(models.ProviderWorkday, func() integration.Integration {
			return workday.New(records, logger)
		}),
		integration.WithConstructor(models.ProviderBambooHR, func() integration.Integration {
			return bamboohr.New(records, logger)
		}),
		integration.WithConstructor(models.ProviderSunLife, func() integration.Integration {
			return sunlife.New(records, logger)
		}),
	)

	engineOpts = append(engineOpts, engine.WithMetrics(m))
	eng := engine.New(factory, logs, jobs, logger, engineOpts...)

	seen := newDedupCache(cfg, logger)
	router := webhook.NewRouter(factory, events, seen, logger, webhook.WithMetrics(m))

	return &Core{
		DB:       db,
		Logger:   logger,
		Registry: promRegistry,
		Metrics:  m,
		Factory:  factory,
		Engine:   eng,
		Router:   router,
	}, nil
}

// newDedupCache prefers the shared Redis cache so webhook dedup
// survives restarts and spans instances; without Redis it degrades to
// the in-process set.
func newDedupCache(cfg *Config, logger *zap.Logger) dedup.Cache {
	if cfg.RedisAddr == "" {
		return dedup.NewMemory()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	return dedup.NewRedis(client, logger)
}

func (c *Core) Close() error {
	return c.DB.Close()
}
