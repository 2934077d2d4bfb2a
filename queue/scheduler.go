package queue

import (
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/models"
)

// Scheduler registers recurring sync tasks with the asynq cron
// scheduler. One registration per job key; Schedule replaces any
// existing entry for the same key.
type Scheduler struct {
	sched  *asynq.Scheduler
	logger *zap.Logger

	mux     sync.Mutex
	entries map[string]string
}

func NewScheduler(redisAddr, redisPassword string, logger *zap.Logger) *Scheduler {
	sched := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword},
		&asynq.SchedulerOpts{},
	)

	return &Scheduler{
		sched:   sched,
		logger:  logger,
		entries: make(map[string]string),
	}
}

func (s *Scheduler) Schedule(job models.SyncJob) error {
	task, err := NewSyncTask(SyncPayload{
		OrgID:    job.OrgID,
		Provider: job.Provider,
		SyncType: job.SyncType,
	})
	if err != nil {
		return err
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	key := job.Key()

	if entryID, ok := s.entries[key]; ok {
		if err := s.sched.Unregister(entryID); err != nil {
			return fmt.Errorf("replacing schedule for %s: %w", key, err)
		}

		delete(s.entries, key)
	}

	entryID, err := s.sched.Register(job.CronExpr, task)
	if err != nil {
		return fmt.Errorf("registering schedule for %s: %w", key, err)
	}

	s.entries[key] = entryID
	s.logger.Info("sync schedule registered",
		zap.String("key", key),
		zap.String("cron", job.CronExpr))

	return nil
}

func (s *Scheduler) Unschedule(key string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	entryID, ok := s.entries[key]
	if !ok {
		return nil
	}

	if err := s.sched.Unregister(entryID); err != nil {
		return fmt.Errorf("unregistering schedule for %s: %w", key, err)
	}

	delete(s.entries, key)
	s.logger.Info("sync schedule removed", zap.String("key", key))

	return nil
}

// Run blocks until Shutdown, driving registered cron entries.
func (s *Scheduler) Run() error {
	return s.sched.Run()
}

func (s *Scheduler) Shutdown() {
	s.sched.Shutdown()
}
