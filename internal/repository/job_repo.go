package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *jobRepo {
	return &jobRepo{db: db}
}

// Create creates a new job.
func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// CreateWithTasks creates a job and its tasks in one transaction. Each task's
// JobID is set to the new job's ID.
func (r *jobRepo) CreateWithTasks(ctx context.Context, job *models.Job, tasks []*models.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("creating job: %w", err)
		}
		for _, task := range tasks {
			task.JobID = job.ID
			if err := tx.Create(task).Error; err != nil {
				return fmt.Errorf("creating task for %s: %w", task.Settings.FilePath, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a job by ID.
func (r *jobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// GetAll retrieves all jobs.
func (r *jobRepo) GetAll(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting all jobs: %w", err)
	}
	return jobs, nil
}

// GetByType retrieves jobs by type.
func (r *jobRepo) GetByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).Where("type = ?", jobType).Order("id DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting jobs by type: %w", err)
	}
	return jobs, nil
}

// GetRunning retrieves all currently running jobs.
func (r *jobRepo) GetRunning(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).
		Where("locked_by IS NOT NULL AND locked_by <> ''").
		Order("started_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting running jobs: %w", err)
	}
	return jobs, nil
}

// GetHeld retrieves jobs that have never been dispatched.
func (r *jobRepo) GetHeld(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).
		Where("next_run_at IS NULL AND started_at IS NULL").
		Where("locked_by IS NULL OR locked_by = ''").
		Order("id ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting held jobs: %w", err)
	}
	return jobs, nil
}

// GetStale retrieves running jobs locked before the given time.
func (r *jobRepo) GetStale(ctx context.Context, lockedBefore time.Time) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).
		Where("locked_by IS NOT NULL AND locked_by <> '' AND locked_at < ?", lockedBefore).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting stale jobs: %w", err)
	}
	return jobs, nil
}

// Update updates an existing job.
func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return nil
}

// UpdateStatus sets the aggregate status of a job.
func (r *jobRepo) UpdateStatus(ctx context.Context, id models.ULID, status models.JobStatus) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).
		UpdateColumn("status", status).Error; err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	return nil
}

// SetResult stores the outcome of a job that has no tasks.
func (r *jobRepo) SetResult(ctx context.Context, id models.ULID, status models.JobStatus, data string, errorMessage string) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":        status,
			"data":          data,
			"error_message": errorMessage,
		}).Error; err != nil {
		return fmt.Errorf("setting job result: %w", err)
	}
	return nil
}

// Dispatch makes a job runnable from the given time.
func (r *jobRepo) Dispatch(ctx context.Context, id models.ULID, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).
		UpdateColumn("next_run_at", at).Error; err != nil {
		return fmt.Errorf("dispatching job: %w", err)
	}
	return nil
}

// DispatchHeld makes every held job runnable from the given time.
func (r *jobRepo) DispatchHeld(ctx context.Context, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("next_run_at IS NULL AND started_at IS NULL").
		Where("locked_by IS NULL OR locked_by = ''").
		UpdateColumn("next_run_at", at)
	if result.Error != nil {
		return 0, fmt.Errorf("dispatching held jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete soft-deletes a job and its tasks, returning the deleted task IDs.
// A job that does not exist yields no IDs and no error.
func (r *jobRepo) Delete(ctx context.Context, id models.ULID) ([]models.ULID, error) {
	var taskIDs []models.ULID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).Where("job_id = ?", id).Order("id ASC").Pluck("id", &taskIDs).Error; err != nil {
			return fmt.Errorf("listing job tasks: %w", err)
		}
		if err := tx.Where("job_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return fmt.Errorf("deleting job tasks: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Job{}).Error; err != nil {
			return fmt.Errorf("deleting job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taskIDs, nil
}

// AcquireJob atomically acquires a dispatchable job for execution.
// Uses SELECT FOR UPDATE with SKIP LOCKED for safe concurrent access; SQLite
// ignores the locking clause and relies on its single writer instead.
func (r *jobRepo) AcquireJob(ctx context.Context, workerID string) (*models.Job, error) {
	var job models.Job
	now := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("next_run_at IS NOT NULL AND next_run_at <= ?", now).
			Where("locked_by IS NULL OR locked_by = ''").
			Order("next_run_at ASC, id ASC").
			Limit(1)

		if err := query.First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("finding dispatchable job: %w", err)
		}

		job.MarkRunning(workerID)

		// Guard on the lock columns so a concurrent acquirer on a database
		// without row locks cannot take the same job.
		result := tx.Model(&models.Job{}).
			Where("id = ? AND (locked_by IS NULL OR locked_by = '')", job.ID).
			UpdateColumns(map[string]any{
				"next_run_at":  nil,
				"started_at":   job.StartedAt,
				"completed_at": nil,
				"locked_by":    job.LockedBy,
				"locked_at":    job.LockedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("acquiring job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &job, nil
}

// FinishJob releases the lock of a finished run. next_run_at is left alone so
// a restart issued while the job was running dispatches it again.
func (r *jobRepo) FinishJob(ctx context.Context, job *models.Job) error {
	job.MarkFinished()
	if err := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", job.ID).
		UpdateColumns(map[string]any{
			"completed_at": job.CompletedAt,
			"duration_ms":  job.DurationMs,
			"locked_by":    nil,
			"locked_at":    nil,
		}).Error; err != nil {
		return fmt.Errorf("finishing job: %w", err)
	}
	return nil
}

// ReleaseJob releases a job lock.
func (r *jobRepo) ReleaseJob(ctx context.Context, id models.ULID) error {
	// Use UpdateColumns to avoid triggering hooks
	result := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).
		UpdateColumns(map[string]any{
			"locked_by": nil,
			"locked_at": nil,
		})

	if result.Error != nil {
		return fmt.Errorf("releasing job: %w", result.Error)
	}
	return nil
}

// Ensure jobRepo implements JobRepository at compile time.
var _ JobRepository = (*jobRepo)(nil)
