package usecase

import (
	"context"
	"log/slog"
	"time"

	"ContentFactory/internal/ports"
)

// Scheduler wires the cron driver with the discover-and-process use case.
type Scheduler struct {
	driver       ports.Scheduler
	orchestrator *Orchestrator
	limit        int
	logger       *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, orchestrator *Orchestrator, limit int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, orchestrator: orchestrator, limit: limit, logger: logger}
}

// Start registers the run with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.orchestrator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Info("scheduled run started", "trigger", trigger)
		batch, err := s.orchestrator.DiscoverAndProcess(ctx, s.limit)
		if err != nil {
			s.logger.Error("scheduled run failed", "error", err)
			return
		}
		s.logger.Info("scheduled run finished",
			"total", batch.Summary.Total,
			"completed", batch.Summary.Completed,
			"partial", batch.Summary.Partial,
			"failed", batch.Summary.Failed,
			"posts", batch.Summary.PostsPublished)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
