package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/dashingest/internal/models"
	"gorm.io/gorm"
)

// taskRepo implements TaskRepository using GORM.
type taskRepo struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *gorm.DB) *taskRepo {
	return &taskRepo{db: db}
}

// Create creates a new task.
func (r *taskRepo) Create(ctx context.Context, task *models.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by ID.
func (r *taskRepo) GetByID(ctx context.Context, id models.ULID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting task by ID: %w", err)
	}
	return &task, nil
}

// GetByJobID retrieves the tasks of a job in creation order.
func (r *taskRepo) GetByJobID(ctx context.Context, jobID models.ULID) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("getting tasks by job ID: %w", err)
	}
	return tasks, nil
}

// GetByStatus retrieves every task in the given status.
func (r *taskRepo) GetByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("getting tasks by status: %w", err)
	}
	return tasks, nil
}

// GetIDsByStatus retrieves the IDs of a job's tasks in any of the given statuses.
func (r *taskRepo) GetIDsByStatus(ctx context.Context, jobID models.ULID, statuses ...models.TaskStatus) ([]models.ULID, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var ids []models.ULID
	if err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("job_id = ? AND status IN ?", jobID, statuses).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("getting task IDs by status: %w", err)
	}
	return ids, nil
}

// GetStatuses retrieves the status of every task of a job.
func (r *taskRepo) GetStatuses(ctx context.Context, jobID models.ULID) ([]models.TaskStatus, error) {
	var statuses []models.TaskStatus
	if err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Pluck("status", &statuses).Error; err != nil {
		return nil, fmt.Errorf("getting task statuses: %w", err)
	}
	return statuses, nil
}

// UpdateStatus sets a task status. The error message only survives on ERROR.
func (r *taskRepo) UpdateStatus(ctx context.Context, id models.ULID, status models.TaskStatus) error {
	updates := map[string]any{"status": status}
	if status != models.TaskStatusError {
		updates["error_message"] = ""
	}
	// Use UpdateColumns to avoid touching updated_at hooks on hot paths
	if err := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).
		UpdateColumns(updates).Error; err != nil {
		return fmt.Errorf("updating task status: %w", err)
	}
	return nil
}

// UpdateProgress sets the task progress percentage.
func (r *taskRepo) UpdateProgress(ctx context.Context, id models.ULID, progress int) error {
	if err := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).
		UpdateColumn("progress", progress).Error; err != nil {
		return fmt.Errorf("updating task progress: %w", err)
	}
	return nil
}

// UpdateProgressMessage sets the latest progress message.
func (r *taskRepo) UpdateProgressMessage(ctx context.Context, id models.ULID, message string) error {
	if err := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).
		UpdateColumn("progress_message", message).Error; err != nil {
		return fmt.Errorf("updating task progress message: %w", err)
	}
	return nil
}

// SetError marks a task ERROR with the given message.
func (r *taskRepo) SetError(ctx context.Context, id models.ULID, message string) error {
	if err := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":        models.TaskStatusError,
			"error_message": message,
		}).Error; err != nil {
		return fmt.Errorf("setting task error: %w", err)
	}
	return nil
}

// ResetForRestart moves the given tasks back to PENDING and clears their errors.
func (r *taskRepo) ResetForRestart(ctx context.Context, ids []models.ULID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.Task{}).Where("id IN ?", ids).
		UpdateColumns(map[string]any{
			"status":        models.TaskStatusPending,
			"error_message": "",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("resetting tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure taskRepo implements TaskRepository at compile time.
var _ TaskRepository = (*taskRepo)(nil)
