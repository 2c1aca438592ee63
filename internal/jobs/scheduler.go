/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package jobs

import (
	"context"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	logger   *slog.Logger
	schedule string
}

// NewScheduler creates a new scheduler instance. An empty schedule disables
// the stale pending sweep.
func NewScheduler(jobs *Jobs, logger *slog.Logger, stalePendingSchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:     c,
		jobs:     jobs,
		logger:   logger,
		schedule: strings.TrimSpace(stalePendingSchedule),
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if s.schedule == "" {
		s.logger.Info("stale pending sweep disabled")
	} else if _, err := s.cron.AddFunc(s.schedule, s.jobs.ReportStalePending); err != nil {
		s.logger.Error("failed to schedule stale pending sweep", "error", err)
	} else {
		s.logger.Info("scheduled stale pending sweep", "schedule", s.schedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
