// Package repository defines data access interfaces for dashingest entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
)

// JobRepository defines operations for job persistence and dispatch.
type JobRepository interface {
	// Create creates a new job.
	Create(ctx context.Context, job *models.Job) error
	// CreateWithTasks creates a job and its tasks in one transaction.
	CreateWithTasks(ctx context.Context, job *models.Job, tasks []*models.Task) error
	// GetByID retrieves a job by ID. Returns nil if the job does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	// GetAll retrieves all jobs, newest first.
	GetAll(ctx context.Context) ([]*models.Job, error)
	// GetByType retrieves jobs of one type, newest first.
	GetByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error)
	// GetRunning retrieves all jobs currently locked by a worker.
	GetRunning(ctx context.Context) ([]*models.Job, error)
	// GetHeld retrieves jobs waiting for the queue to be started.
	GetHeld(ctx context.Context) ([]*models.Job, error)
	// GetStale retrieves running jobs locked before the given time.
	GetStale(ctx context.Context, lockedBefore time.Time) ([]*models.Job, error)
	// Update saves every field of an existing job.
	Update(ctx context.Context, job *models.Job) error
	// UpdateStatus sets the aggregate status of a job.
	UpdateStatus(ctx context.Context, id models.ULID, status models.JobStatus) error
	// SetResult stores the final status, payload, and error message of a job without tasks.
	SetResult(ctx context.Context, id models.ULID, status models.JobStatus, data string, errorMessage string) error
	// Dispatch makes a job runnable from the given time.
	Dispatch(ctx context.Context, id models.ULID, at time.Time) error
	// DispatchHeld makes every held job runnable from the given time.
	DispatchHeld(ctx context.Context, at time.Time) (int64, error)
	// Delete soft-deletes a job and its tasks, returning the IDs of the deleted tasks.
	Delete(ctx context.Context, id models.ULID) ([]models.ULID, error)
	// AcquireJob atomically locks the oldest dispatchable job for workerID.
	// Returns nil if no job is available.
	AcquireJob(ctx context.Context, workerID string) (*models.Job, error)
	// FinishJob releases the lock of a finished run and records its timing.
	FinishJob(ctx context.Context, job *models.Job) error
	// ReleaseJob clears a job lock without touching anything else.
	ReleaseJob(ctx context.Context, id models.ULID) error
}

// TaskRepository defines operations for task persistence.
type TaskRepository interface {
	// Create creates a new task.
	Create(ctx context.Context, task *models.Task) error
	// GetByID retrieves a task by ID. Returns nil if the task does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.Task, error)
	// GetByJobID retrieves the tasks of a job in creation order.
	GetByJobID(ctx context.Context, jobID models.ULID) ([]*models.Task, error)
	// GetByStatus retrieves every task in the given status, across jobs.
	GetByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error)
	// GetIDsByStatus retrieves the IDs of a job's tasks in any of the given statuses.
	GetIDsByStatus(ctx context.Context, jobID models.ULID, statuses ...models.TaskStatus) ([]models.ULID, error)
	// GetStatuses retrieves the status of every task of a job.
	GetStatuses(ctx context.Context, jobID models.ULID) ([]models.TaskStatus, error)
	// UpdateStatus sets a task status. Any status other than ERROR clears the error message.
	UpdateStatus(ctx context.Context, id models.ULID, status models.TaskStatus) error
	// UpdateProgress sets the task progress percentage.
	UpdateProgress(ctx context.Context, id models.ULID, progress int) error
	// UpdateProgressMessage sets the latest progress message.
	UpdateProgressMessage(ctx context.Context, id models.ULID, message string) error
	// SetError marks a task ERROR with the given message.
	SetError(ctx context.Context, id models.ULID, message string) error
	// ResetForRestart moves the given tasks back to PENDING and clears their errors.
	ResetForRestart(ctx context.Context, ids []models.ULID) (int64, error)
}

// CatalogRepository defines operations for the video catalog.
type CatalogRepository interface {
	// CreateFolder returns the folder with the given natural key, creating it if absent.
	CreateFolder(ctx context.Context, year, month, day int, observerCode string) (*models.CatalogFolder, error)
	// GetFolder retrieves a folder by ID. Returns nil if the folder does not exist.
	GetFolder(ctx context.Context, id models.ULID) (*models.CatalogFolder, error)
	// GetFolders retrieves all folders ordered by date.
	GetFolders(ctx context.Context) ([]*models.CatalogFolder, error)
	// CreateVideo creates a catalog video.
	CreateVideo(ctx context.Context, video *models.CatalogVideo) error
	// GetVideosByFolder retrieves the visible videos of a folder.
	GetVideosByFolder(ctx context.Context, folderID models.ULID) ([]*models.CatalogVideo, error)
}

// SettingRepository defines operations for the key/value settings store.
type SettingRepository interface {
	// Get retrieves a setting. Returns nil if the key is unset.
	Get(ctx context.Context, key models.SettingKey) (*models.Setting, error)
	// GetAll retrieves every stored setting.
	GetAll(ctx context.Context) ([]*models.Setting, error)
	// Set stores a value, replacing any existing one.
	Set(ctx context.Context, key models.SettingKey, value string) error
	// SetIfAbsent stores a value only if the key is unset. Returns true if it was stored.
	SetIfAbsent(ctx context.Context, key models.SettingKey, value string) (bool, error)
}

// ScheduleRepository defines operations for the single queue schedule.
type ScheduleRepository interface {
	// Get retrieves the current schedule. Returns nil if none is set.
	Get(ctx context.Context) (*models.QueueSchedule, error)
	// Replace removes any existing schedule and stores the given one.
	Replace(ctx context.Context, schedule *models.QueueSchedule) error
	// Clear removes the schedule.
	Clear(ctx context.Context) error
	// MarkRun records when the schedule last started the queue.
	MarkRun(ctx context.Context, id models.ULID, at time.Time) error
}
