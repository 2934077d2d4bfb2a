// Package serverunner runs the HTTP surface together with the cron
// scheduler and the webhook retention sweep.
package serverunner

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unionhall/integration-hub/engine"
	"github.com/unionhall/integration-hub/queue"
	"github.com/unionhall/integration-hub/runner"
	"github.com/unionhall/integration-hub/web"
)

const cleanupInterval = 24 * time.Hour

type serveRunner struct {
	cfg    *runner.Config
	core   *runner.Core
	sched  *queue.Scheduler
	tasks  *queue.Client
	srv    *web.Server
	logger *zap.Logger
}

func New(cfg *runner.Config) (runner.Runner, error) {
	logger, err := runner.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	sched := queue.NewScheduler(cfg.RedisAddr, cfg.RedisPassword, logger)
	tasks := queue.NewClient(cfg.RedisAddr, cfg.RedisPassword, logger)

	core, err := runner.BuildCore(cfg, logger, engine.WithScheduler(sched))
	if err != nil {
		return nil, err
	}

	srv := web.New(core.Engine, core.Router, core.Factory, logger,
		web.WithMetricsGatherer(core.Registry),
		web.WithSyncEnqueuer(tasks))

	return &serveRunner{
		cfg:    cfg,
		core:   core,
		sched:  sched,
		tasks:  tasks,
		srv:    srv,
		logger: logger,
	}, nil
}

func (r *serveRunner) Run(ctx context.Context) error {
	if err := r.core.Engine.RestoreSchedules(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := r.srv.Start(r.cfg.Addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		return r.sched.Run()
	})

	g.Go(func() error {
		r.cleanupLoop(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r.sched.Shutdown()

		return r.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (r *serveRunner) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.core.Router.CleanupOldEvents(ctx, r.cfg.CleanupDays)
			if err != nil {
				r.logger.Error("webhook event cleanup failed", zap.Error(err))
				continue
			}

			r.logger.Info("webhook events cleaned up", zap.Int64("deleted", n))
		}
	}
}

func (r *serveRunner) Close(context.Context) error {
	if err := r.tasks.Close(); err != nil {
		r.logger.Warn("closing task client failed", zap.Error(err))
	}

	return r.core.Close()
}
