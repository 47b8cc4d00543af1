package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
	"github.com/jmylchreest/dashingest/internal/scheduler"
)

// TranscodeRequest is a transcode job submission.
type TranscodeRequest struct {
	SourceDir string
	Tasks     []models.TranscodeSettings
	// Hold leaves the job in the queue until StartQueue is called.
	Hold bool
}

// TaskStatusView is the client view of one task.
type TaskStatusView struct {
	ID              models.ULID       `json:"id"`
	FilePath        string            `json:"file_path"`
	Status          models.TaskStatus `json:"status"`
	Progress        int               `json:"progress"`
	ProgressMessage string            `json:"progress_message,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Size            float64           `json:"size"`
}

// JobService provides high-level job management operations.
type JobService struct {
	jobRepo  repository.JobRepository
	taskRepo repository.TaskRepository
	settings *SettingsService
	runner   *scheduler.Runner
	logger   *slog.Logger
	now      func() time.Time
}

// NewJobService creates a new JobService.
func NewJobService(
	jobRepo repository.JobRepository,
	taskRepo repository.TaskRepository,
	settings *SettingsService,
) *JobService {
	return &JobService{
		jobRepo:  jobRepo,
		taskRepo: taskRepo,
		settings: settings,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// WithLogger sets a custom logger.
func (s *JobService) WithLogger(logger *slog.Logger) *JobService {
	s.logger = logger
	return s
}

// WithRunner sets the runner instance.
func (s *JobService) WithRunner(runner *scheduler.Runner) *JobService {
	s.runner = runner
	return s
}

// SubmitTranscode validates a submission and creates the job with one
// QUEUED task per file. Unless held, the job is dispatched immediately.
func (s *JobService) SubmitTranscode(ctx context.Context, req TranscodeRequest) (*models.Job, error) {
	if err := checkSourceDir(req.SourceDir); err != nil {
		return nil, err
	}
	if len(req.Tasks) == 0 {
		return nil, models.ErrValidation{Field: "tasks", Message: "at least one file is required"}
	}

	// The destination roots are needed by every task; fail the submission
	// rather than every task.
	if _, err := s.settings.MediaDirs(ctx); err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(req.Tasks))
	for i := range req.Tasks {
		settings := req.Tasks[i]
		settings.ApplyDefaults()
		if err := settings.Validate(); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		if err := checkReadableFile(settings.FilePath); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		tasks = append(tasks, &models.Task{
			Status:   models.TaskStatusQueued,
			Settings: settings,
		})
	}

	job := &models.Job{
		Type:      models.JobTypeTranscode,
		Status:    models.JobStatusQueued,
		SourceDir: filepath.Clean(req.SourceDir),
	}
	if !req.Hold {
		job.Dispatch(s.now())
	}

	if err := s.jobRepo.CreateWithTasks(ctx, job, tasks); err != nil {
		return nil, fmt.Errorf("creating transcode job: %w", err)
	}

	s.logger.Info("transcode job submitted",
		slog.String("job_id", job.ID.String()),
		slog.String("source_dir", job.SourceDir),
		slog.Int("tasks", len(tasks)),
		slog.Bool("held", req.Hold))

	return job, nil
}

func checkSourceDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: source_dir is required", ErrInvalidSourceDir)
	}
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("%w: %s is not absolute", ErrInvalidSourceDir, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidSourceDir, dir)
	}
	return nil
}

func checkReadableFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.ErrValidation{Field: "file_path", Message: fmt.Sprintf("%s does not exist", path)}
		}
		return models.ErrValidation{Field: "file_path", Message: err.Error()}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.ErrValidation{Field: "file_path", Message: err.Error()}
	}
	if !info.Mode().IsRegular() {
		return models.ErrValidation{Field: "file_path", Message: fmt.Sprintf("%s is not a regular file", path)}
	}
	return nil
}

// GetByID retrieves a job by ID.
func (s *JobService) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// GetAll retrieves all jobs.
func (s *JobService) GetAll(ctx context.Context) ([]*models.Job, error) {
	return s.jobRepo.GetAll(ctx)
}

// GetByType retrieves jobs by type.
func (s *JobService) GetByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error) {
	return s.jobRepo.GetByType(ctx, jobType)
}

// GetRunning retrieves all running jobs.
func (s *JobService) GetRunning(ctx context.Context) ([]*models.Job, error) {
	return s.jobRepo.GetRunning(ctx)
}

// GetStatus returns the aggregate status of a job.
func (s *JobService) GetStatus(ctx context.Context, id models.ULID) (models.JobStatus, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// GetTaskStatuses returns the status, progress and size of every task of a job.
func (s *JobService) GetTaskStatuses(ctx context.Context, id models.ULID) ([]TaskStatusView, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.GetByJobID(ctx, id)
	if err != nil {
		return nil, err
	}

	views := make([]TaskStatusView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, TaskStatusView{
			ID:              task.ID,
			FilePath:        task.Settings.FilePath,
			Status:          task.Status,
			Progress:        task.Progress,
			ProgressMessage: task.ProgressMessage,
			ErrorMessage:    task.ErrorMessage,
			Size:            task.Settings.Size(),
		})
	}
	return views, nil
}

// Restart moves a job's PENDING and ERROR tasks back to PENDING and
// dispatches the job again while any task is left to run. Completed and
// queued tasks keep their state and no tasks are created. Returns the number
// of tasks reset.
func (s *JobService) Restart(ctx context.Context, id models.ULID) (int64, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if job.Type != models.JobTypeTranscode {
		return 0, fmt.Errorf("%w: only transcode jobs can be restarted", ErrWrongJobType)
	}

	ids, err := s.taskRepo.GetIDsByStatus(ctx, id, models.RestartableTaskStatuses...)
	if err != nil {
		return 0, err
	}
	reset, err := s.taskRepo.ResetForRestart(ctx, ids)
	if err != nil {
		return 0, err
	}
	if _, err := s.RecomputeStatus(ctx, id); err != nil {
		return reset, err
	}

	runnable, err := s.taskRepo.GetIDsByStatus(ctx, id, models.RunnableTaskStatuses...)
	if err != nil {
		return reset, err
	}
	if len(runnable) > 0 {
		if err := s.jobRepo.Dispatch(ctx, id, s.now()); err != nil {
			return reset, err
		}
	}

	s.logger.Info("transcode job restarted",
		slog.String("job_id", id.String()),
		slog.Int64("tasks", reset),
		slog.Bool("running", job.IsRunning()))

	return reset, nil
}

// Delete soft-deletes a job and its tasks, returning the orphaned task IDs.
// A running job notices the deletion when it reaches its next task.
func (s *JobService) Delete(ctx context.Context, id models.ULID) ([]models.ULID, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	taskIDs, err := s.jobRepo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("job deleted",
		slog.String("job_id", id.String()),
		slog.Int("tasks", len(taskIDs)))

	return taskIDs, nil
}

// RecomputeStatus derives a job's status from its tasks and stores it.
func (s *JobService) RecomputeStatus(ctx context.Context, id models.ULID) (models.JobStatus, error) {
	return recomputeJobStatus(ctx, s.jobRepo, s.taskRepo, id)
}

func recomputeJobStatus(ctx context.Context, jobRepo repository.JobRepository, taskRepo repository.TaskRepository, id models.ULID) (models.JobStatus, error) {
	statuses, err := taskRepo.GetStatuses(ctx, id)
	if err != nil {
		return "", fmt.Errorf("recomputing job status: %w", err)
	}
	status := models.AggregateJobStatus(statuses)
	if err := jobRepo.UpdateStatus(ctx, id, status); err != nil {
		return "", fmt.Errorf("recomputing job status: %w", err)
	}
	return status, nil
}

// StartQueue dispatches every held job. It satisfies scheduler.QueueStarter.
func (s *JobService) StartQueue(ctx context.Context) (int64, error) {
	dispatched, err := s.jobRepo.DispatchHeld(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info("queue started", slog.Int64("jobs", dispatched))
	return dispatched, nil
}

// GetHeld retrieves the jobs waiting for the queue to start.
func (s *JobService) GetHeld(ctx context.Context) ([]*models.Job, error) {
	return s.jobRepo.GetHeld(ctx)
}

// HandleStaleJob fails the work of a job whose lock expired: INCOMPLETE tasks
// become ERROR, or the whole job for jobs without tasks.
func (s *JobService) HandleStaleJob(ctx context.Context, job *models.Job) error {
	const message = "job lock expired"

	if job.Type == models.JobTypeMetadata {
		return s.jobRepo.SetResult(ctx, job.ID, models.JobStatusError, "", message)
	}

	ids, err := s.taskRepo.GetIDsByStatus(ctx, job.ID, models.TaskStatusIncomplete)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.taskRepo.SetError(ctx, id, message); err != nil {
			return err
		}
	}
	_, err = s.RecomputeStatus(ctx, job.ID)
	return err
}

// RunnerStatus returns the runner state, or nil without a runner.
func (s *JobService) RunnerStatus() *scheduler.RunnerStatus {
	if s.runner == nil {
		return nil
	}
	status := s.runner.GetStatus()
	return &status
}

var _ scheduler.QueueStarter = (*JobService)(nil)
