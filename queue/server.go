package queue

import (
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server is the worker-side asynq server.
type Server struct {
	server *asynq.Server
	logger *zap.Logger
}

func NewServer(redisAddr, redisPassword string, concurrency int, logger *zap.Logger) *Server {
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queueName: 1},
		},
	)

	return &Server{server: srv, logger: logger}
}

// Run blocks processing tasks until Shutdown.
func (s *Server) Run(mux *asynq.ServeMux) error {
	s.logger.Info("worker server starting")
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}
