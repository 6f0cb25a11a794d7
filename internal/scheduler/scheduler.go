package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"plantwise/internal/services"
)

// Scheduler periodically re-evaluates the standing watering plan of every
// registered plant so the registry always holds a fresh recommendation.
type Scheduler struct {
	advisor *services.Advisor
	cron    *cron.Cron
	spec    string
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

func NewScheduler(advisor *services.Advisor, spec string, logger *zap.Logger) *Scheduler {
	if spec == "" {
		spec = "@every 1h"
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))
	return &Scheduler{
		advisor: advisor,
		cron:    c,
		spec:    spec,
		logger:  logger,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.refresh); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.String("spec", s.spec))

	// Refresh immediately so plans exist before the first tick.
	go s.refresh()
	return nil
}

func (s *Scheduler) refresh() {
	s.mu.Lock()
	s.running = true
	s.lastRun = time.Now()
	s.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s.advisor.RefreshAllPlans(ctx)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Scheduled plan refresh completed",
		zap.Duration("duration", time.Since(start)))
}

// ForceRun triggers a refresh outside the schedule.
func (s *Scheduler) ForceRun() {
	go s.refresh()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"spec":     s.spec,
		"running":  s.running,
		"last_run": s.lastRun,
	}
}
