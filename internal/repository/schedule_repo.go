package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"gorm.io/gorm"
)

// scheduleRepo implements ScheduleRepository using GORM.
type scheduleRepo struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *gorm.DB) *scheduleRepo {
	return &scheduleRepo{db: db}
}

// Get retrieves the current schedule.
func (r *scheduleRepo) Get(ctx context.Context) (*models.QueueSchedule, error) {
	var schedule models.QueueSchedule
	if err := r.db.WithContext(ctx).Order("id DESC").First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting queue schedule: %w", err)
	}
	return &schedule, nil
}

// Replace removes any existing schedule and stores the given one.
func (r *scheduleRepo) Replace(ctx context.Context, schedule *models.QueueSchedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.QueueSchedule{}).Error; err != nil {
			return fmt.Errorf("removing queue schedule: %w", err)
		}
		if err := tx.Create(schedule).Error; err != nil {
			return fmt.Errorf("creating queue schedule: %w", err)
		}
		return nil
	})
}

// Clear removes the schedule.
func (r *scheduleRepo) Clear(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
		Unscoped().Delete(&models.QueueSchedule{}).Error; err != nil {
		return fmt.Errorf("clearing queue schedule: %w", err)
	}
	return nil
}

// MarkRun records when the schedule last started the queue.
func (r *scheduleRepo) MarkRun(ctx context.Context, id models.ULID, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.QueueSchedule{}).Where("id = ?", id).
		UpdateColumn("last_run_at", at).Error; err != nil {
		return fmt.Errorf("marking queue schedule run: %w", err)
	}
	return nil
}

// Ensure scheduleRepo implements ScheduleRepository at compile time.
var _ ScheduleRepository = (*scheduleRepo)(nil)
