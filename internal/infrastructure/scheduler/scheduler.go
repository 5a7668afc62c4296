package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"ad-board/pkg/logger"
)

// Scheduler drives the daily expiration sweep. It is constructed once
// during startup and owns its own lifecycle; nothing here runs as a
// package-level side effect.
type Scheduler struct {
	cron    *cron.Cron
	loggers *logger.Loggers
}

func New(loggers *logger.Loggers) *Scheduler {
	// Overlapping runs are skipped rather than queued; the sweep also
	// holds its own mutex, this just avoids piling up goroutines.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &Scheduler{
		cron:    c,
		loggers: loggers,
	}
}

// AddDaily registers job to run every day at the given hour.
func (s *Scheduler) AddDaily(hour int, name string, job func()) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour %d for job %q", hour, name)
	}

	spec := fmt.Sprintf("0 %d * * *", hour)
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("failed to register job %q: %w", name, err)
	}

	s.loggers.InfoLogger.Info("Scheduled daily job", "job", name, "hour", hour)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.loggers.InfoLogger.Info("Scheduler started")
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.loggers.InfoLogger.Info("Scheduler stopped")
}
