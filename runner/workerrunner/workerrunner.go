// Package workerrunner runs the queue consumer that executes sync
// tasks.
package workerrunner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/unionhall/integration-hub/queue"
	"github.com/unionhall/integration-hub/runner"
)

type workerRunner struct {
	core   *runner.Core
	server *queue.Server
	mux    *queue.Handler
}

func New(cfg *runner.Config) (runner.Runner, error) {
	logger, err := runner.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	core, err := runner.BuildCore(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &workerRunner{
		core:   core,
		server: queue.NewServer(cfg.RedisAddr, cfg.RedisPassword, cfg.Concurrency, logger),
		mux:    queue.NewHandler(core.Engine, logger),
	}, nil
}

func (r *workerRunner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.server.Run(r.mux.Mux())
	})

	g.Go(func() error {
		<-ctx.Done()
		r.server.Shutdown()
		return nil
	})

	return g.Wait()
}

func (r *workerRunner) Close(context.Context) error {
	return r.core.Close()
}
