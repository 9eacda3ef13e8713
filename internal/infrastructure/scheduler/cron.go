package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	"ContentFactory/internal/ports"
)

// CronScheduler triggers jobs on a standard five-field cron expression.
// A trigger that fires while the previous run is still going is skipped.
type CronScheduler struct {
	schedule cron.Schedule
	location *time.Location
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running atomic.Bool
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler parses the expression ("0 */6 * * *", "@daily", "@every 2h").
func NewCronScheduler(expr string, loc *time.Location, logger *slog.Logger) (*CronScheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CronScheduler{schedule: schedule, location: loc, logger: logger}, nil
}

// Next reports the first trigger strictly after t.
func (c *CronScheduler) Next(t time.Time) time.Time {
	return c.schedule.Next(t.In(c.location))
}

// Start registers the job and begins triggering until Stop or ctx is done.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	c.cron = cron.NewWithLocation(c.location)
	c.cron.Schedule(c.schedule, cron.FuncJob(func() { c.trigger(job) }))
	c.cron.Start()
	c.logger.Info("scheduler started", "next", c.Next(time.Now()))

	stopped := c.cron
	go func() {
		<-ctx.Done()
		c.halt(stopped)
	}()

	return nil
}

func (c *CronScheduler) trigger(job func(time.Time)) {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Warn("previous run still in progress, trigger skipped")
		return
	}
	defer c.running.Store(false)
	job(time.Now().In(c.location))
}

// Stop halts future triggers. A run already in progress is not interrupted.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	current := c.cron
	c.mu.Unlock()
	c.halt(current)
	return nil
}

func (c *CronScheduler) halt(target *cron.Cron) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target == nil || c.cron != target {
		return
	}
	c.cron.Stop()
	c.cron = nil
}
