// Package runner holds process configuration and the run-mode
// contract shared by the serve and worker entrypoints.
package runner

import (
	"context"
	"errors"
	"flag"
	"os"
	"strconv"

	"go.uber.org/zap"
)

const (
	RunModeServe = iota + 1
	RunModeWorker
)

var ErrInvalidRunMode = errors.New("invalid run mode")

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

type Config struct {
	RunMode       int
	Addr          string
	Dsn           string
	RedisAddr     string
	RedisPassword string
	Concurrency   int
	CleanupDays   int
	Debug         bool
}

// ParseConfig reads flags with environment fallbacks. Flags win.
func ParseConfig() *Config {
	cfg := Config{}

	var worker bool

	flag.StringVar(&cfg.Addr, "addr", ":8080", "address to listen on")
	flag.StringVar(&cfg.Dsn, "dsn", "", "postgres connection string [default: $DATABASE_URL]")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address [default: $REDIS_ADDR or localhost:6379]")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "redis password [default: $REDIS_PASSWORD]")
	flag.IntVar(&cfg.Concurrency, "c", 5, "worker concurrency")
	flag.IntVar(&cfg.CleanupDays, "cleanup-days", 30, "webhook event retention in days")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flag.BoolVar(&worker, "worker", false, "run the sync worker instead of the http server")

	flag.Parse()

	if cfg.Dsn == "" {
		cfg.Dsn = os.Getenv("DATABASE_URL")
	}

	if cfg.RedisAddr == "" {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	}

	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}

	if cfg.RedisPassword == "" {
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}

	cfg.RunMode = RunModeServe
	if worker {
		cfg.RunMode = RunModeWorker
	}

	return &cfg
}

// NewLogger builds the process logger.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}
