package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
	"github.com/jmylchreest/dashingest/internal/scheduler"
)

// ScheduleRequest sets the queue schedule. Exactly one of RunAt and
// CronSchedule must be given.
type ScheduleRequest struct {
	RunAt        *time.Time
	CronSchedule string
}

// ScheduleView is a stored schedule together with its next trigger.
type ScheduleView struct {
	Schedule *models.QueueSchedule `json:"schedule"`
	NextRun  *time.Time            `json:"next_run,omitempty"`
}

// ScheduleService manages the single queue schedule.
type ScheduleService struct {
	repo      repository.ScheduleRepository
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduleService creates a new ScheduleService. The scheduler validates
// cron expressions and computes next runs.
func NewScheduleService(repo repository.ScheduleRepository, sched *scheduler.Scheduler) *ScheduleService {
	return &ScheduleService{
		repo:      repo,
		scheduler: sched,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// WithLogger sets a custom logger.
func (s *ScheduleService) WithLogger(logger *slog.Logger) *ScheduleService {
	s.logger = logger
	return s
}

// Set replaces the queue schedule.
func (s *ScheduleService) Set(ctx context.Context, req ScheduleRequest) (*ScheduleView, error) {
	schedule := &models.QueueSchedule{
		RunAt:        req.RunAt,
		CronSchedule: strings.TrimSpace(req.CronSchedule),
	}
	if err := schedule.Validate(); err != nil {
		return nil, models.ErrValidation{Field: "schedule", Message: err.Error()}
	}
	if schedule.IsRecurring() {
		if err := s.scheduler.ValidateCron(schedule.CronSchedule); err != nil {
			return nil, models.ErrValidation{Field: "cron_schedule", Message: err.Error()}
		}
	} else if !schedule.RunAt.After(s.now()) {
		return nil, models.ErrValidation{Field: "run_at", Message: "must be in the future"}
	}

	if err := s.repo.Replace(ctx, schedule); err != nil {
		return nil, fmt.Errorf("storing queue schedule: %w", err)
	}

	view := s.view(schedule)
	attrs := []any{slog.String("cron", schedule.CronSchedule)}
	if view.NextRun != nil {
		attrs = append(attrs, slog.Time("next_run", *view.NextRun))
	}
	s.logger.Info("queue schedule set", attrs...)
	return view, nil
}

// Get returns the queue schedule or ErrNoSchedule.
func (s *ScheduleService) Get(ctx context.Context) (*ScheduleView, error) {
	schedule, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, ErrNoSchedule
	}
	return s.view(schedule), nil
}

// Clear removes the queue schedule. Clearing an empty schedule is not an error.
func (s *ScheduleService) Clear(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("queue schedule cleared")
	return nil
}

func (s *ScheduleService) view(schedule *models.QueueSchedule) *ScheduleView {
	view := &ScheduleView{Schedule: schedule}
	if next := s.scheduler.NextRun(schedule); !next.IsZero() {
		view.NextRun = &next
	}
	return view
}
