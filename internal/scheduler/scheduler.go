// Package scheduler provides job execution and queue scheduling for dashingest.
// The runner executes dispatched jobs on a bounded worker pool; the scheduler
// releases held jobs from a one-shot or cron queue schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
)

// QueueStarter dispatches every held job.
type QueueStarter interface {
	StartQueue(ctx context.Context) (int64, error)
}

// Scheduler fires the persisted queue schedule.
type Scheduler struct {
	mu sync.RWMutex

	scheduleRepo repository.ScheduleRepository
	starter      QueueStarter

	logger *slog.Logger

	// cron parser for validating/parsing cron expressions
	parser cron.Parser

	// Running state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Sync interval for checking the schedule
	syncInterval time.Duration

	// misfireGrace is how late a one-shot trigger may be observed and still fire
	misfireGrace time.Duration

	now func() time.Time
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	// SyncInterval is how often the schedule is checked.
	// Default: 15 seconds
	SyncInterval time.Duration

	// MisfireGrace is the longest delay after which a one-shot trigger still fires.
	// Later triggers are skipped and cleared.
	// Default: 60 seconds
	MisfireGrace time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SyncInterval: 15 * time.Second,
		MisfireGrace: 60 * time.Second,
	}
}

// NewScheduler creates a new scheduler.
func NewScheduler(scheduleRepo repository.ScheduleRepository, starter QueueStarter) *Scheduler {
	config := DefaultSchedulerConfig()
	return &Scheduler{
		scheduleRepo: scheduleRepo,
		starter:      starter,
		logger:       slog.Default(),
		parser:       cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		syncInterval: config.SyncInterval,
		misfireGrace: config.MisfireGrace,
		now:          time.Now,
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithConfig applies configuration to the scheduler.
func (s *Scheduler) WithConfig(config SchedulerConfig) *Scheduler {
	if config.SyncInterval > 0 {
		s.syncInterval = config.SyncInterval
	}
	if config.MisfireGrace > 0 {
		s.misfireGrace = config.MisfireGrace
	}
	return s
}

// Start begins the scheduler's background sync loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.syncLoop()

	s.logger.Info("scheduler started",
		slog.Duration("sync_interval", s.syncInterval),
		slog.Duration("misfire_grace", s.misfireGrace))

	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// syncLoop periodically checks the queue schedule.
func (s *Scheduler) syncLoop() {
	defer s.wg.Done()

	// Run immediately on start
	s.syncSchedule(s.ctx)

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.syncSchedule(s.ctx)
		}
	}
}

// syncSchedule fires the schedule if it is due and reports whether the queue
// was started.
func (s *Scheduler) syncSchedule(ctx context.Context) bool {
	schedule, err := s.scheduleRepo.Get(ctx)
	if err != nil {
		s.logger.Error("failed to get queue schedule", slog.Any("error", err))
		return false
	}
	if schedule == nil {
		return false
	}

	now := s.now()
	if schedule.IsRecurring() {
		return s.syncRecurring(ctx, schedule, now)
	}
	return s.syncOneShot(ctx, schedule, now)
}

func (s *Scheduler) syncOneShot(ctx context.Context, schedule *models.QueueSchedule, now time.Time) bool {
	if schedule.RunAt == nil || now.Before(*schedule.RunAt) {
		return false
	}

	late := now.Sub(*schedule.RunAt)
	fired := false
	if late > s.misfireGrace {
		s.logger.Warn("skipping missed queue schedule",
			slog.Time("run_at", *schedule.RunAt),
			slog.Duration("late", late))
	} else {
		fired = s.startQueue(ctx, "one-shot")
	}

	if err := s.scheduleRepo.Clear(ctx); err != nil {
		s.logger.Error("failed to clear one-shot queue schedule", slog.Any("error", err))
	}
	return fired
}

func (s *Scheduler) syncRecurring(ctx context.Context, schedule *models.QueueSchedule, now time.Time) bool {
	if !s.isDue(schedule, now) {
		return false
	}

	fired := s.startQueue(ctx, schedule.CronSchedule)
	if err := s.scheduleRepo.MarkRun(ctx, schedule.ID, now); err != nil {
		s.logger.Error("failed to record queue schedule run", slog.Any("error", err))
	}
	return fired
}

// isDue checks whether a cron schedule has an occurrence between its last
// run (or creation) and now.
func (s *Scheduler) isDue(schedule *models.QueueSchedule, now time.Time) bool {
	parsed, err := s.parser.Parse(schedule.CronSchedule)
	if err != nil {
		s.logger.Warn("invalid cron expression", slog.String("cron", schedule.CronSchedule), slog.Any("error", err))
		return false
	}

	since := schedule.CreatedAt
	if schedule.LastRunAt != nil {
		since = *schedule.LastRunAt
	}
	next := parsed.Next(since)
	return !next.After(now)
}

func (s *Scheduler) startQueue(ctx context.Context, trigger string) bool {
	dispatched, err := s.starter.StartQueue(ctx)
	if err != nil {
		s.logger.Error("failed to start queue from schedule",
			slog.String("trigger", trigger),
			slog.Any("error", err))
		return false
	}
	s.logger.Info("queue started from schedule",
		slog.String("trigger", trigger),
		slog.Int64("jobs", dispatched))
	return true
}

// NextRun returns when the schedule will next start the queue. The zero time
// means it will not fire again.
func (s *Scheduler) NextRun(schedule *models.QueueSchedule) time.Time {
	if schedule == nil {
		return time.Time{}
	}
	if !schedule.IsRecurring() {
		if schedule.RunAt == nil {
			return time.Time{}
		}
		return *schedule.RunAt
	}
	parsed, err := s.parser.Parse(schedule.CronSchedule)
	if err != nil {
		return time.Time{}
	}
	return parsed.Next(s.now())
}

// ParseCron validates a cron expression and returns the next run time.
func (s *Scheduler) ParseCron(expr string) (time.Time, error) {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule.Next(s.now()), nil
}

// ValidateCron validates a cron expression.
func (s *Scheduler) ValidateCron(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}
